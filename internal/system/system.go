package system

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// replaced with the release version by the build pipeline
var version = "development"

func Version() string {
	return version
}

// ErrUnsupportedOS marks hosts outside the Fedora family; every
// provisioning path refuses to run on them.
var ErrUnsupportedOS = errors.New("unsupported operating system")

const osReleasePath = "/etc/os-release"

// RequireSupported verifies the host is a Linux system of the Fedora family.
// The package set, service unit and trust tooling this tool drives are all
// Fedora-specific.
func RequireSupported() error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("%w: %s", ErrUnsupportedOS, runtime.GOOS)
	}

	id, idLike := readOsReleaseIDs(osReleasePath)
	if !isFedoraFamily(id, idLike) {
		return fmt.Errorf("%w: ID=%q ID_LIKE=%q", ErrUnsupportedOS, id, idLike)
	}
	return nil
}

// RequireRoot guards the provisioning paths. Package installation, service
// control and trust store mutation all need root privileges.
func RequireRoot() error {
	if os.Geteuid() != 0 {
		return errors.New("this command must run as root (try sudo)")
	}
	return nil
}

// RequireCommands fails when any of the given executables is missing from PATH.
func RequireCommands(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("required command %q not found: %w", name, err)
		}
	}
	return nil
}

func isFedoraFamily(id, idLike string) bool {
	candidates := append([]string{id}, strings.Fields(idLike)...)
	for _, candidate := range candidates {
		switch strings.Trim(candidate, "\"") {
		case "fedora", "rhel", "centos":
			return true
		}
	}
	return false
}
