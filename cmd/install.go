package cmd

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cacstrap/cacstrap/internal/anchor"
	"github.com/cacstrap/cacstrap/internal/bundle"
	"github.com/cacstrap/cacstrap/internal/daemon"
	"github.com/cacstrap/cacstrap/internal/pkgmgr"
	"github.com/cacstrap/cacstrap/internal/system"
	"github.com/cacstrap/cacstrap/internal/workspace"
	"github.com/cacstrap/cacstrap/util"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the smart-card packages, daemon and DoD trust anchors",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupCommand(cmd); err != nil {
			return err
		}
		if err := util.InitLog(logLevel, logFile); err != nil {
			return err
		}
		if err := system.RequireSupported(); err != nil {
			return err
		}
		if err := system.RequireRoot(); err != nil {
			return err
		}
		if err := system.RequireCommands("trust", "update-ca-trust", "dnf", "rpm", "systemctl"); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		SetupCloseHandler(ctx, cancel)

		cmd.Println("Installing smart-card packages...")
		installed, err := pkgmgr.New().EnsureInstalled(ctx, cfg.Packages)
		if err != nil {
			return err
		}
		if len(installed) > 0 {
			cmd.Printf("Installed packages: %v\n", installed)
		}

		cmd.Printf("Enabling %s daemon...\n", cfg.ServiceName)
		svc := daemon.New(cfg.ServiceName)
		if err := svc.Enable(ctx); err != nil {
			return err
		}
		if err := svc.Start(); err != nil {
			// the unit may already be active; only a stopped daemon is a problem
			status, statusErr := svc.Status()
			if statusErr != nil || status != "running" {
				return err
			}
			log.Debugf("daemon start returned %v but service is running", err)
		}

		ws, err := workspace.New(cfg.WorkDir, time.Now())
		if err != nil {
			return err
		}
		if err := ws.PurgePreviousRuns(); err != nil {
			log.Warnf("failed to purge previous run artifacts: %v", err)
		}

		cmd.Printf("Fetching certificate bundle from %s\n", cfg.BundleURL)
		stop := startSpinner(cmd.ErrOrStderr(), "downloading certificate bundle")
		err = bundle.Fetch(ctx, cfg.BundleURL, ws.ArchivePath())
		stop()
		if err != nil {
			return err
		}

		decoded, err := bundle.Decode(ctx, ws.ArchivePath(), ws)
		if err != nil {
			return err
		}
		cmd.Printf("Decoded %d certificates from bundle\n", len(decoded.Certs))

		rec := anchor.NewReconciler(anchor.NewTrustCLI(), cfg.Marker, confirmReinstall(cmd))
		stop = startSpinner(cmd.ErrOrStderr(), "updating trust anchors")
		report, err := rec.Install(ctx, decoded.Paths())
		stop()
		if report != nil {
			printReport(cmd, report)
			if werr := util.WriteJson(context.WithoutCancel(ctx), ws.ReportPath(), report); werr != nil {
				log.Warnf("failed to save run report: %v", werr)
			}
		}
		return err
	},
}

func printReport(cmd *cobra.Command, report *anchor.Report) {
	cmd.Printf("Decision: %s\n", report.Decision)
	cmd.Printf("Anchors matching marker: %d before, %d after\n", report.Before, report.After)
	if len(report.Failures) > 0 {
		cmd.Printf("Partial failures (%d):\n", len(report.Failures))
		for _, failure := range report.Failures {
			cmd.Printf("  - %s\n", failure)
		}
	}
	cmd.Printf("Completed in %v\n", report.Elapsed.Round(time.Millisecond))
}
