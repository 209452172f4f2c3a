package pkgmgr

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/cacstrap/cacstrap/util"
)

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Manager wraps the dnf/rpm tooling used for the smart-card package set.
type Manager struct {
	query runner
	run   runner
}

func New() *Manager {
	return &Manager{
		query: util.RunCommand,
		run:   util.RunPrivileged,
	}
}

// Installed reports whether a package is present on the host.
func (m *Manager) Installed(ctx context.Context, pkg string) bool {
	_, err := m.query(ctx, "rpm", "-q", pkg)
	return err == nil
}

// EnsureInstalled installs the packages not already present, in a single
// dnf transaction. It returns the packages that were actually installed.
func (m *Manager) EnsureInstalled(ctx context.Context, pkgs []string) ([]string, error) {
	var missing []string
	for _, pkg := range pkgs {
		if m.Installed(ctx, pkg) {
			log.Debugf("package %s already installed", pkg)
			continue
		}
		missing = append(missing, pkg)
	}

	if len(missing) == 0 {
		log.Info("all required packages already installed")
		return nil, nil
	}

	log.Infof("installing packages: %v", missing)
	args := append([]string{"install", "-y"}, missing...)
	if _, err := m.run(ctx, "dnf", args...); err != nil {
		return nil, fmt.Errorf("install packages: %w", err)
	}
	return missing, nil
}

// Remove removes the given packages in a single dnf transaction.
func (m *Manager) Remove(ctx context.Context, pkgs []string) error {
	log.Infof("removing packages: %v", pkgs)
	args := append([]string{"remove", "-y"}, pkgs...)
	if _, err := m.run(ctx, "dnf", args...); err != nil {
		return fmt.Errorf("remove packages: %w", err)
	}
	return nil
}
