package cmd

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmReinstall(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"lowercase yes", "y\n", true},
		{"full yes", "yes\n", true},
		{"uppercase yes", "Y\n", true},
		{"explicit no", "n\n", false},
		{"empty answer", "\n", false},
		{"garbage answer", "maybe\n", false},
		{"closed input", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.SetOut(io.Discard)
			cmd.SetIn(strings.NewReader(tc.input))

			assert.Equal(t, tc.want, confirmReinstall(cmd)(3))
		})
	}
}

func TestConfirmReinstallAssumeYes(t *testing.T) {
	oldAssumeYes := assumeYes
	assumeYes = true
	defer func() { assumeYes = oldAssumeYes }()

	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	// no input attached at all: --yes must answer without reading
	assert.True(t, confirmReinstall(cmd)(3))
}

func TestConfirmReinstallNonTerminalStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer")
	require.NoError(t, os.WriteFile(path, []byte("y\n"), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	cmd.SetIn(f)

	// a redirected stdin holds a yes, but without a terminal the answer
	// must stay "no"
	assert.False(t, confirmReinstall(cmd)(3))
}
