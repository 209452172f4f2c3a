package anchor

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/cacstrap/cacstrap/util"
)

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// TrustCLI drives the p11-kit trust tooling that owns the system anchors on
// Fedora. Mutations go through `trust anchor`, the marker probe reads
// `trust list`, and consolidation refreshes the derived bundles with
// `update-ca-trust extract`.
type TrustCLI struct {
	exec     runner
	privExec runner
}

func NewTrustCLI() *TrustCLI {
	return &TrustCLI{
		exec:     util.RunCommand,
		privExec: util.RunPrivileged,
	}
}

func (t *TrustCLI) Add(ctx context.Context, files []string) error {
	args := append([]string{"anchor", "--store"}, files...)
	_, err := t.privExec(ctx, "trust", args...)
	return err
}

func (t *TrustCLI) Remove(ctx context.Context, files []string) error {
	args := append([]string{"anchor", "--remove"}, files...)
	_, err := t.privExec(ctx, "trust", args...)
	return err
}

func (t *TrustCLI) CountByLabel(ctx context.Context, marker string) (int, error) {
	out, err := t.exec(ctx, "trust", "list")
	if err != nil {
		return 0, err
	}
	return countLabels(out, marker), nil
}

func (t *TrustCLI) Consolidate(ctx context.Context) error {
	_, err := t.privExec(ctx, "update-ca-trust", "extract")
	return err
}

// countLabels counts `label:` lines in trust list output whose value
// contains the marker.
func countLabels(listing []byte, marker string) int {
	count := 0
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		value, ok := strings.CutPrefix(line, "label:")
		if !ok {
			continue
		}
		if strings.Contains(value, marker) {
			count++
		}
	}
	return count
}
