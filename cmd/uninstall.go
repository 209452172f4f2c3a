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

var removePackages bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the DoD trust anchors and stop the smart-card daemon",
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
		if err := system.RequireCommands(uninstallCommands(removePackages)...); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		SetupCloseHandler(ctx, cancel)

		ws, err := workspace.New(cfg.WorkDir, time.Now())
		if err != nil {
			return err
		}

		paths, err := removalCertificates(ctx, cmd, cfg, ws)
		if err != nil {
			return err
		}

		rec := anchor.NewReconciler(anchor.NewTrustCLI(), cfg.Marker, nil)
		stop := startSpinner(cmd.ErrOrStderr(), "removing trust anchors")
		report, err := rec.Remove(ctx, paths)
		stop()
		if report != nil {
			printReport(cmd, report)
		}
		if err != nil {
			return err
		}

		cmd.Printf("Stopping %s daemon...\n", cfg.ServiceName)
		svc := daemon.New(cfg.ServiceName)
		if err := svc.Stop(); err != nil {
			log.Warnf("failed to stop daemon: %v", err)
		}
		if err := svc.Disable(ctx); err != nil {
			log.Warnf("failed to disable daemon: %v", err)
		}

		if removePackages {
			cmd.Println("Removing smart-card packages...")
			if err := pkgmgr.New().Remove(ctx, cfg.Packages); err != nil {
				return err
			}
		}

		return nil
	},
}

// uninstallCommands lists the tools the uninstall run shells out to. The
// package manager is only needed when packages are removed too, but it must
// be checked up front: discovering a missing tool mid-run would leave the
// anchors already removed with the packages still in place.
func uninstallCommands(withPackages bool) []string {
	commands := []string{"trust", "update-ca-trust", "systemctl"}
	if withPackages {
		commands = append(commands, "dnf", "rpm")
	}
	return commands
}

// removalCertificates returns the certificate files to remove. The split
// files left by the original install are preferred since they target
// exactly what was installed; when they are gone the bundle is re-fetched
// and re-decoded, which yields an equivalent set because removal is keyed
// by certificate content.
func removalCertificates(ctx context.Context, cmd *cobra.Command, cfg *Config, ws *workspace.Workspace) ([]string, error) {
	files, err := ws.SplitCerts()
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		cmd.Printf("Using %d certificate files from the previous install\n", len(files))
		return files, nil
	}

	cmd.Printf("No local certificate files found, re-fetching bundle from %s\n", cfg.BundleURL)
	stop := startSpinner(cmd.ErrOrStderr(), "downloading certificate bundle")
	err = bundle.Fetch(ctx, cfg.BundleURL, ws.ArchivePath())
	stop()
	if err != nil {
		return nil, err
	}

	decoded, err := bundle.Decode(ctx, ws.ArchivePath(), ws)
	if err != nil {
		return nil, err
	}
	return decoded.Paths(), nil
}
