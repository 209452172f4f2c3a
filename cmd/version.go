package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cacstrap/cacstrap/internal/system"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints cacstrap version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(system.Version())
	},
}
