package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RunCommand executes a command and returns its combined output. On a
// nonzero exit the output is folded into the error so the log carries
// enough context to diagnose without re-running.
func RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// RunPrivileged behaves like RunCommand but prefixes sudo when the process
// is not running as root.
func RunPrivileged(ctx context.Context, name string, args ...string) ([]byte, error) {
	if os.Geteuid() != 0 {
		args = append([]string{name}, args...)
		name = "sudo"
	}
	return RunCommand(ctx, name, args...)
}
