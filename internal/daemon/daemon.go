package daemon

import (
	"context"
	"fmt"

	"github.com/kardianos/service"

	"github.com/cacstrap/cacstrap/util"
)

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Controller manages the smart-card daemon system service (pcscd). The
// unit already exists on the host; this only starts, stops and queries it.
type Controller struct {
	name string
	run  runner
}

func New(name string) *Controller {
	return &Controller{name: name, run: util.RunPrivileged}
}

// noop satisfies the service interface; the daemon binary is not ours to run.
type noop struct{}

func (noop) Start(service.Service) error { return nil }
func (noop) Stop(service.Service) error  { return nil }

func (c *Controller) service() (service.Service, error) {
	return service.New(noop{}, &service.Config{
		Name:   c.name,
		Option: make(service.KeyValue),
	})
}

func (c *Controller) Start() error {
	s, err := c.service()
	if err != nil {
		return fmt.Errorf("create service handle: %w", err)
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.name, err)
	}
	return nil
}

func (c *Controller) Stop() error {
	s, err := c.service()
	if err != nil {
		return fmt.Errorf("create service handle: %w", err)
	}
	if err := s.Stop(); err != nil {
		return fmt.Errorf("stop %s: %w", c.name, err)
	}
	return nil
}

// Status returns a human-readable service state.
func (c *Controller) Status() (string, error) {
	s, err := c.service()
	if err != nil {
		return "", fmt.Errorf("create service handle: %w", err)
	}

	status, err := s.Status()
	if err != nil {
		return "", fmt.Errorf("get %s status: %w", c.name, err)
	}

	switch status {
	case service.StatusRunning:
		return "running", nil
	case service.StatusStopped:
		return "stopped", nil
	default:
		return "unknown", nil
	}
}

// Enable marks the unit for start at boot. The service library only
// installs units it owns, so enabling the preexisting daemon unit goes
// through systemctl directly.
func (c *Controller) Enable(ctx context.Context) error {
	if _, err := c.run(ctx, "systemctl", "enable", c.name); err != nil {
		return fmt.Errorf("enable %s: %w", c.name, err)
	}
	return nil
}

// Disable removes the unit from boot startup.
func (c *Controller) Disable(ctx context.Context) error {
	if _, err := c.run(ctx, "systemctl", "disable", c.name); err != nil {
		return fmt.Errorf("disable %s: %w", c.name, err)
	}
	return nil
}
