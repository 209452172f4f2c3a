package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Decision records how the reconciler acted on the comparison between the
// decoded bundle and the marker probe of the store.
type Decision string

const (
	DecisionInstall   Decision = "install"
	DecisionReinstall Decision = "reinstall"
	DecisionSkip      Decision = "skip"
	DecisionRemove    Decision = "remove"
)

const defaultChunkSize = 20

// Report summarizes one reconciliation pass.
type Report struct {
	Decision   Decision      `json:"decision"`
	Before     int           `json:"anchors_before"`
	After      int           `json:"anchors_after"`
	Files      int           `json:"certificate_files"`
	ChunkCalls int           `json:"chunk_calls"`
	Failures   []string      `json:"failures,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ConfirmFunc answers whether anchors matching the marker should be
// reinstalled. It is consulted only when the probe finds existing anchors.
type ConfirmFunc func(existing int) bool

// Reconciler compares the decoded certificate set against the trust store
// and converges them. The marker count is a cheap heuristic for the
// skip/reinstall decision only; correctness of the mutation rests on the
// store's own idempotence semantics.
type Reconciler struct {
	store     Store
	marker    string
	chunkSize int
	confirm   ConfirmFunc
}

func NewReconciler(store Store, marker string, confirm ConfirmFunc) *Reconciler {
	return &Reconciler{
		store:     store,
		marker:    marker,
		chunkSize: defaultChunkSize,
		confirm:   confirm,
	}
}

// Install converges the trust store on the given certificate files. When
// the marker probe finds existing anchors the confirm callback decides
// between leaving the store untouched and a remove-then-install pass.
func (r *Reconciler) Install(ctx context.Context, files []string) (*Report, error) {
	start := time.Now()

	before, err := r.store.CountByLabel(ctx, r.marker)
	if err != nil {
		return nil, fmt.Errorf("probe existing anchors: %w", err)
	}

	report := &Report{Before: before, Files: len(files), Decision: DecisionInstall}

	if before > 0 {
		if r.confirm == nil || !r.confirm(before) {
			report.Decision = DecisionSkip
			report.After = before
			report.Elapsed = time.Since(start)
			log.Infof("leaving %d existing %q anchors in place", before, r.marker)
			return report, nil
		}
		report.Decision = DecisionReinstall
	}

	if report.Decision == DecisionReinstall {
		log.Infof("removing %d certificate anchors before reinstall", len(files))
		calls, failures := r.mutate(ctx, files, r.store.Remove)
		report.ChunkCalls += calls
		appendFailures(report, failures)
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	log.Infof("installing %d certificate anchors", len(files))
	calls, failures := r.mutate(ctx, files, r.store.Add)
	report.ChunkCalls += calls
	appendFailures(report, failures)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	r.consolidate(ctx)

	after, err := r.store.CountByLabel(ctx, r.marker)
	if err != nil {
		return nil, fmt.Errorf("verify anchors: %w", err)
	}
	report.After = after
	report.Elapsed = time.Since(start)

	log.Infof("trust anchor install done: %d -> %d %q anchors in %v", before, after, r.marker, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// Remove is the rollback half: it deletes the given certificate set from
// the store and re-probes the marker count afterwards. Identity is by
// certificate content, so the files may be the original install tickets or
// an equivalent re-decoded set.
func (r *Reconciler) Remove(ctx context.Context, files []string) (*Report, error) {
	start := time.Now()

	before, err := r.store.CountByLabel(ctx, r.marker)
	if err != nil {
		return nil, fmt.Errorf("probe existing anchors: %w", err)
	}

	report := &Report{Before: before, Files: len(files), Decision: DecisionRemove}

	log.Infof("removing %d certificate anchors", len(files))
	calls, failures := r.mutate(ctx, files, r.store.Remove)
	report.ChunkCalls += calls
	appendFailures(report, failures)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	r.consolidate(ctx)

	after, err := r.store.CountByLabel(ctx, r.marker)
	if err != nil {
		return nil, fmt.Errorf("verify anchors: %w", err)
	}
	report.After = after
	report.Elapsed = time.Since(start)

	log.Infof("trust anchor removal done: %d -> %d %q anchors in %v", before, after, r.marker, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// mutate applies op over the whole file set in one call and falls back to
// fixed-size chunks when the bulk call fails, as the tooling imposes
// practical limits on argument counts and rejects whole invocations on one
// bad entry. A failing chunk is recorded and the remaining chunks still
// run, so one bad certificate cannot abort the rest of the set.
func (r *Reconciler) mutate(ctx context.Context, files []string, op func(context.Context, []string) error) (calls int, failures error) {
	if len(files) == 0 {
		return 0, nil
	}

	err := op(ctx, files)
	if err == nil {
		return 1, nil
	}
	if ctx.Err() != nil {
		return 1, multierror.Append(failures, err)
	}
	log.Warnf("bulk trust store call failed, falling back to chunks of %d: %v", r.chunkSize, err)

	for begin := 0; begin < len(files); begin += r.chunkSize {
		if ctx.Err() != nil {
			failures = multierror.Append(failures, ctx.Err())
			break
		}
		end := min(begin+r.chunkSize, len(files))
		calls++
		if err := op(ctx, files[begin:end]); err != nil {
			log.Warnf("trust store chunk %d-%d failed: %v", begin, end-1, err)
			failures = multierror.Append(failures, err)
		}
	}
	return calls, failures
}

// Consolidation refreshes the derived bundles; the anchors themselves are
// already in place, so a failure here is only logged.
func (r *Reconciler) consolidate(ctx context.Context) {
	if err := r.store.Consolidate(ctx); err != nil {
		log.Warnf("trust store consolidation failed: %v", err)
	}
}

func appendFailures(report *Report, failures error) {
	if failures == nil {
		return
	}
	var merr *multierror.Error
	if errors.As(failures, &merr) {
		for _, err := range merr.Errors {
			report.Failures = append(report.Failures, err.Error())
		}
		return
	}
	report.Failures = append(report.Failures, failures.Error())
}
