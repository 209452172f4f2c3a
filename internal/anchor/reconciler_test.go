package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keys membership by certificate file content, mirroring the real
// registry's content-addressed semantics: re-adding present content is a
// no-op, removing absent content is not an error.
type fakeStore struct {
	t *testing.T

	anchors map[string]bool

	addCalls    [][]string
	removeCalls [][]string

	// fail any mutation carrying more files than this (0 disables),
	// simulating argument-count limits of the store tooling
	failAbove int
	// fail the nth mutation call (counting bulk attempts), -1 disables
	failCall int

	callCount      int
	consolidations int
	consolidateErr error
}

func newFakeStore(t *testing.T) *fakeStore {
	return &fakeStore{t: t, anchors: make(map[string]bool), failCall: -1}
}

func (f *fakeStore) contentKey(file string) string {
	data, err := os.ReadFile(file)
	require.NoError(f.t, err)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (f *fakeStore) failed(files []string) bool {
	n := f.callCount
	f.callCount++
	if f.failAbove > 0 && len(files) > f.failAbove {
		return true
	}
	return n == f.failCall
}

func (f *fakeStore) Add(_ context.Context, files []string) error {
	f.addCalls = append(f.addCalls, files)
	if f.failed(files) {
		return errors.New("store rejected add call")
	}
	for _, file := range files {
		f.anchors[f.contentKey(file)] = true
	}
	return nil
}

func (f *fakeStore) Remove(_ context.Context, files []string) error {
	f.removeCalls = append(f.removeCalls, files)
	if f.failed(files) {
		return errors.New("store rejected remove call")
	}
	for _, file := range files {
		delete(f.anchors, f.contentKey(file))
	}
	return nil
}

func (f *fakeStore) CountByLabel(context.Context, string) (int, error) {
	return len(f.anchors), nil
}

func (f *fakeStore) Consolidate(context.Context) error {
	f.consolidations++
	return f.consolidateErr
}

func writeCertFiles(t *testing.T, dir string, n int) []string {
	t.Helper()
	files := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("cert-%04d.pem", i+1))
		content := fmt.Sprintf("-----BEGIN CERTIFICATE-----\ncert body %d\n-----END CERTIFICATE-----\n", i+1)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		files = append(files, path)
	}
	return files
}

func noPrompt(t *testing.T) ConfirmFunc {
	return func(int) bool {
		t.Fatal("confirm callback must not be called when no anchors exist")
		return false
	}
}

func TestInstallFreshStore(t *testing.T) {
	store := newFakeStore(t)
	files := writeCertFiles(t, t.TempDir(), 5)

	rec := NewReconciler(store, "DoD", noPrompt(t))
	report, err := rec.Install(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, DecisionInstall, report.Decision)
	assert.Equal(t, 0, report.Before)
	assert.Equal(t, 5, report.After)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, store.consolidations)
	require.Len(t, store.addCalls, 1)
	assert.Len(t, store.addCalls[0], 5)
	assert.Empty(t, store.removeCalls)
}

func TestInstallSkipsWhenUserDeclines(t *testing.T) {
	store := newFakeStore(t)
	files := writeCertFiles(t, t.TempDir(), 5)

	rec := NewReconciler(store, "DoD", nil)
	_, err := rec.Install(context.Background(), files)
	require.NoError(t, err)

	declined := 0
	rec = NewReconciler(store, "DoD", func(existing int) bool {
		declined = existing
		return false
	})
	report, err := rec.Install(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, DecisionSkip, report.Decision)
	assert.Equal(t, 5, declined)
	assert.Equal(t, 5, report.Before)
	assert.Equal(t, 5, report.After)
	// only the first install mutated the store
	assert.Len(t, store.addCalls, 1)
}

func TestInstallReinstallRemovesFirst(t *testing.T) {
	store := newFakeStore(t)
	files := writeCertFiles(t, t.TempDir(), 5)

	rec := NewReconciler(store, "DoD", nil)
	_, err := rec.Install(context.Background(), files)
	require.NoError(t, err)

	rec = NewReconciler(store, "DoD", func(int) bool { return true })
	report, err := rec.Install(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, DecisionReinstall, report.Decision)
	assert.Equal(t, 5, report.Before)
	assert.Equal(t, 5, report.After)
	require.Len(t, store.removeCalls, 1)
	require.Len(t, store.addCalls, 2)
}

func TestInstallIsIdempotent(t *testing.T) {
	store := newFakeStore(t)
	files := writeCertFiles(t, t.TempDir(), 5)

	rec := NewReconciler(store, "DoD", func(int) bool { return true })

	report1, err := rec.Install(context.Background(), files)
	require.NoError(t, err)
	report2, err := rec.Install(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, report1.After, report2.After)
	assert.Len(t, store.anchors, 5)
}

func TestChunkedFallback(t *testing.T) {
	store := newFakeStore(t)
	store.failAbove = defaultChunkSize
	files := writeCertFiles(t, t.TempDir(), 45)

	rec := NewReconciler(store, "DoD", noPrompt(t))
	report, err := rec.Install(context.Background(), files)
	require.NoError(t, err)

	// bulk attempt plus ceil(45/20) = 3 chunks
	require.Len(t, store.addCalls, 4)
	assert.Len(t, store.addCalls[0], 45)
	assert.Len(t, store.addCalls[1], 20)
	assert.Len(t, store.addCalls[2], 20)
	assert.Len(t, store.addCalls[3], 5)
	assert.Equal(t, 3, report.ChunkCalls)
	assert.Equal(t, 45, report.After)
	assert.Empty(t, report.Failures)
}

func TestChunkFailureDoesNotAbortSiblings(t *testing.T) {
	store := newFakeStore(t)
	store.failAbove = defaultChunkSize
	store.failCall = 2 // second chunk (call 0 is the bulk attempt)
	files := writeCertFiles(t, t.TempDir(), 45)

	rec := NewReconciler(store, "DoD", noPrompt(t))
	report, err := rec.Install(context.Background(), files)
	require.NoError(t, err)

	// all three chunks attempted despite the middle one failing
	require.Len(t, store.addCalls, 4)
	assert.Len(t, report.Failures, 1)
	assert.Equal(t, 25, report.After)
}

func TestRemoveRoundTrip(t *testing.T) {
	store := newFakeStore(t)
	files := writeCertFiles(t, t.TempDir(), 5)

	rec := NewReconciler(store, "DoD", noPrompt(t))
	installReport, err := rec.Install(context.Background(), files)
	require.NoError(t, err)
	require.Equal(t, 5, installReport.After)

	removeReport, err := rec.Remove(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, DecisionRemove, removeReport.Decision)
	assert.Equal(t, 5, removeReport.Before)
	assert.Equal(t, 0, removeReport.After)
	assert.Equal(t, installReport.After-removeReport.After, 5)
}

func TestRemoveByEquivalentContent(t *testing.T) {
	store := newFakeStore(t)
	installFiles := writeCertFiles(t, t.TempDir(), 5)

	rec := NewReconciler(store, "DoD", noPrompt(t))
	_, err := rec.Install(context.Background(), installFiles)
	require.NoError(t, err)

	// same certificate contents re-decoded into different paths, as after
	// the original local files were deleted
	redecoded := writeCertFiles(t, t.TempDir(), 5)

	report, err := rec.Remove(context.Background(), redecoded)
	require.NoError(t, err)
	assert.Equal(t, 0, report.After)
}

func TestRemoveNonexistentAnchors(t *testing.T) {
	store := newFakeStore(t)
	files := writeCertFiles(t, t.TempDir(), 3)

	rec := NewReconciler(store, "DoD", noPrompt(t))
	report, err := rec.Remove(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Before)
	assert.Equal(t, 0, report.After)
	assert.Empty(t, report.Failures)
}

func TestConsolidationFailureIsNotFatal(t *testing.T) {
	store := newFakeStore(t)
	store.consolidateErr = errors.New("update-ca-trust exploded")
	files := writeCertFiles(t, t.TempDir(), 2)

	rec := NewReconciler(store, "DoD", noPrompt(t))
	report, err := rec.Install(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 2, report.After)
}

func TestInstallInterrupted(t *testing.T) {
	store := newFakeStore(t)
	files := writeCertFiles(t, t.TempDir(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := NewReconciler(store, "DoD", noPrompt(t))
	_, err := rec.Install(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)
}
