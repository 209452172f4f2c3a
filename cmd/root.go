package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	bundleURLFlag = "bundle-url"
	markerFlag    = "marker"
	workDirFlag   = "workdir"
	serviceFlag   = "service"

	envVarPrefix = "CAC_"
)

var (
	configPath  string
	logLevel    string
	logFile     string
	verbose     bool
	bundleURL   string
	marker      string
	workDir     string
	serviceName string
	assumeYes   bool

	rootCmd = &cobra.Command{
		Use:          "cacstrap",
		Short:        "provision the smart-card (CAC) software stack on Fedora",
		Long: `cacstrap installs the smart-card packages, enables the pcscd daemon and
registers the DoD certificate bundle as system trust anchors. The uninstall
command reverses all of it.`,
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultConfigPath := "/etc/cacstrap/config.json"
	defaultLogFile := "/var/log/cacstrap/cacstrap.log"
	defaultWorkDir := "/var/lib/cacstrap"

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "cacstrap config file location")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "sets cacstrap log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", defaultLogFile, "sets cacstrap log path. If console is specified the log will be output to stdout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "shorthand for --log-level debug")
	rootCmd.PersistentFlags().StringVar(&bundleURL, bundleURLFlag, defaultBundleURL, "HTTPS URL of the PKCS#7 certificate bundle archive")
	rootCmd.PersistentFlags().StringVar(&marker, markerFlag, defaultMarker, "label substring used to count anchors already present in the trust store")
	rootCmd.PersistentFlags().StringVarP(&workDir, workDirFlag, "w", defaultWorkDir, "directory holding downloaded archives and split certificates")
	rootCmd.PersistentFlags().StringVarP(&serviceName, serviceFlag, "s", "pcscd", "smart-card daemon service name")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	installCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "reinstall existing anchors without prompting")
	uninstallCmd.Flags().BoolVar(&removePackages, "remove-packages", false, "also remove the smart-card package set")
}

// SetupCloseHandler handles SIGINT/SIGTERM and cancels the run context
func SetupCloseHandler(ctx context.Context, cancel context.CancelFunc) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		done := ctx.Done()
		select {
		case <-done:
		case <-termCh:
			log.Info("shutdown signal received")
			cancel()
		}
	}()
}

// SetFlagsFromEnvVars reads and updates flag values from environment variables with prefix CAC_
func SetFlagsFromEnvVars(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.VisitAll(func(f *pflag.Flag) {
		envVar := FlagNameToEnvVar(f.Name, envVarPrefix)

		if value, present := os.LookupEnv(envVar); present {
			err := flags.Set(f.Name, value)
			if err != nil {
				log.Infof("unable to configure flag %s using variable %s, err: %v", f.Name, envVar, err)
			}
		}
	})
}

// FlagNameToEnvVar converts flag name to environment var name adding a prefix,
// replacing dashes and making all uppercase (e.g. bundle-url is converted to CAC_BUNDLE_URL)
func FlagNameToEnvVar(cmdFlag string, prefix string) string {
	parsed := strings.ReplaceAll(cmdFlag, "-", "_")
	upper := strings.ToUpper(parsed)
	return prefix + upper
}

func setupCommand(cmd *cobra.Command) error {
	SetFlagsFromEnvVars(rootCmd)
	cmd.SetOut(cmd.OutOrStdout())
	if verbose {
		logLevel = "debug"
	}
	return nil
}
