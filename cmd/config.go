package cmd

import (
	"fmt"
	"os"

	"github.com/cacstrap/cacstrap/util"
)

const (
	defaultBundleURL = "https://dl.dod.cyber.mil/wp-content/uploads/pki-pke/zip/certificates_pkcs7_DoD.zip"
	defaultMarker    = "DoD"
)

var defaultPackages = []string{
	"pcsc-lite",
	"pcsc-lite-libs",
	"pcsc-tools",
	"ccid",
	"opensc",
	"gnupg2",
	"nss-tools",
}

// Config holds the file-backed settings. Flags and CAC_* environment
// variables take precedence over file values.
type Config struct {
	BundleURL   string   `json:"bundle_url,omitempty"`
	Marker      string   `json:"marker,omitempty"`
	WorkDir     string   `json:"workdir,omitempty"`
	ServiceName string   `json:"service,omitempty"`
	Packages    []string `json:"packages,omitempty"`
}

// loadConfig merges the optional config file under the current flag values.
func loadConfig() (*Config, error) {
	cfg := &Config{
		BundleURL:   bundleURL,
		Marker:      marker,
		WorkDir:     workDir,
		ServiceName: serviceName,
		Packages:    defaultPackages,
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("stat config %s: %w", configPath, err)
	}

	fileCfg := &Config{}
	if _, err := util.ReadJson(configPath, fileCfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	flags := rootCmd.PersistentFlags()
	if fileCfg.BundleURL != "" && !flags.Changed(bundleURLFlag) {
		cfg.BundleURL = fileCfg.BundleURL
	}
	if fileCfg.Marker != "" && !flags.Changed(markerFlag) {
		cfg.Marker = fileCfg.Marker
	}
	if fileCfg.WorkDir != "" && !flags.Changed(workDirFlag) {
		cfg.WorkDir = fileCfg.WorkDir
	}
	if fileCfg.ServiceName != "" && !flags.Changed(serviceFlag) {
		cfg.ServiceName = fileCfg.ServiceName
	}
	if len(fileCfg.Packages) > 0 {
		cfg.Packages = fileCfg.Packages
	}

	return cfg, nil
}
