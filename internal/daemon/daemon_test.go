package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnableDisableCommands(t *testing.T) {
	var calls [][]string
	c := &Controller{
		name: "pcscd",
		run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			calls = append(calls, append([]string{name}, args...))
			return nil, nil
		},
	}

	require.NoError(t, c.Enable(context.Background()))
	require.NoError(t, c.Disable(context.Background()))

	require.Len(t, calls, 2)
	assert.Equal(t, []string{"systemctl", "enable", "pcscd"}, calls[0])
	assert.Equal(t, []string{"systemctl", "disable", "pcscd"}, calls[1])
}
