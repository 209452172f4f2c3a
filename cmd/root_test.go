package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCommands(t *testing.T) {
	helpFlag := "-h"
	commandArgs := [][]string{{"root", helpFlag}}
	for _, command := range rootCmd.Commands() {
		commandArgs = append(commandArgs, []string{command.Name(), command.Name(), helpFlag})
	}

	for _, args := range commandArgs {
		t.Run(fmt.Sprintf("Testing Command %s", args[0]), func(t *testing.T) {
			defer func() {
				err := recover()
				if err != nil {
					t.Fatalf("got a panic error while running the command: %s -h. Error: %s", args[0], err)
				}
			}()

			rootCmd.SetArgs(args[1:])
			rootCmd.SetOut(io.Discard)
			if err := rootCmd.Execute(); err != nil {
				t.Errorf("expected no error while running %s command, got %v", args[0], err)
				return
			}
		})
	}
}

func TestFlagNameToEnvVar(t *testing.T) {
	assert.Equal(t, "CAC_BUNDLE_URL", FlagNameToEnvVar("bundle-url", envVarPrefix))
	assert.Equal(t, "CAC_LOG_LEVEL", FlagNameToEnvVar("log-level", envVarPrefix))
}

func TestSetFlagsFromEnvVars(t *testing.T) {
	t.Setenv("CAC_MARKER", "ExampleOrg")
	t.Setenv("CAC_SERVICE", "pcscd-test")

	SetFlagsFromEnvVars(rootCmd)

	assert.Equal(t, "ExampleOrg", marker)
	assert.Equal(t, "pcscd-test", serviceName)
}

func TestLoadConfigFileValues(t *testing.T) {
	dir := t.TempDir()
	oldConfigPath := configPath
	configPath = filepath.Join(dir, "config.json")
	defer func() { configPath = oldConfigPath }()

	content := `{
    "bundle_url": "https://mirror.example.com/certs.zip",
    "workdir": "/srv/cacstrap",
    "packages": ["pcsc-lite", "opensc"]
}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://mirror.example.com/certs.zip", cfg.BundleURL)
	assert.Equal(t, "/srv/cacstrap", cfg.WorkDir)
	assert.Equal(t, []string{"pcsc-lite", "opensc"}, cfg.Packages)
}

func TestLoadConfigMissingFile(t *testing.T) {
	oldConfigPath := configPath
	configPath = filepath.Join(t.TempDir(), "missing.json")
	defer func() { configPath = oldConfigPath }()

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, defaultPackages, cfg.Packages)
}

func TestUninstallCommands(t *testing.T) {
	assert.Equal(t, []string{"trust", "update-ca-trust", "systemctl"}, uninstallCommands(false))
	assert.Equal(t, []string{"trust", "update-ca-trust", "systemctl", "dnf", "rpm"}, uninstallCommands(true))
}

func TestSpinnerNoopOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer

	stop := startSpinner(&buf, "working")
	stop()
	stop() // stopping twice must be safe

	assert.Empty(t, buf.String())
}
