package cmd

import (
	"bufio"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cacstrap/cacstrap/internal/anchor"
)

// confirmReinstall builds the decision callback for the reconciler. With
// --yes the prompt is skipped; without a terminal on stdin the answer is
// always "no", so unattended runs never reinstall by accident. Otherwise
// anything but an explicit yes counts as "no".
func confirmReinstall(cmd *cobra.Command) anchor.ConfirmFunc {
	return func(existing int) bool {
		if assumeYes {
			return true
		}

		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			log.Infof("stdin is not a terminal, leaving %d existing anchors in place", existing)
			return false
		}

		cmd.Printf("%d anchors matching %q are already installed. Remove and reinstall them? [y/N]: ", existing, marker)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil {
			return false
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}
