package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cacstrap/cacstrap/internal/anchor"
	"github.com/cacstrap/cacstrap/internal/daemon"
	"github.com/cacstrap/cacstrap/internal/pkgmgr"
	"github.com/cacstrap/cacstrap/internal/system"
	"github.com/cacstrap/cacstrap/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, package and trust anchor status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupCommand(cmd); err != nil {
			return err
		}
		if err := util.InitLog(logLevel, "console"); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		info := system.GetInfo()
		cmd.Printf("Host: %s (%s %s)\n", info.Hostname, info.OS, info.OSVersion)

		state, err := daemon.New(cfg.ServiceName).Status()
		if err != nil {
			state = "unavailable"
		}
		cmd.Printf("Daemon %s: %s\n", cfg.ServiceName, state)

		mgr := pkgmgr.New()
		for _, pkg := range cfg.Packages {
			mark := "missing"
			if mgr.Installed(cmd.Context(), pkg) {
				mark = "installed"
			}
			cmd.Printf("Package %-16s %s\n", pkg, mark)
		}

		count, err := anchor.NewTrustCLI().CountByLabel(cmd.Context(), cfg.Marker)
		if err != nil {
			cmd.Printf("Trust anchors matching %q: unavailable (%v)\n", cfg.Marker, err)
			return nil
		}
		cmd.Printf("Trust anchors matching %q: %d\n", cfg.Marker, count)
		return nil
	},
}
