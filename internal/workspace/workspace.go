package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cacstrap/cacstrap/util"
)

const (
	archivePrefix = "bundle-"
	extractPrefix = "extract-"
	reportPrefix  = "report-"
	certsDirName  = "certs"
	splitPrefix   = "cert-"
	stampLayout   = "20060102-150405"
)

// Workspace owns the on-disk artifacts of provisioning runs: downloaded
// bundle archives, extracted archive contents and the per-certificate split
// files fed to the trust store mutation. Archive and extraction paths are
// namespaced by the run's start timestamp so two runs never overwrite each
// other's in-progress files. The split certificate directory is shared
// across runs; rollback reads it to target exactly what a previous install
// added, and it is purged right before every new split.
type Workspace struct {
	Root string

	stamp string
}

// New creates the workspace root (if needed) and assigns the run its own
// timestamp namespace.
func New(root string, start time.Time) (*Workspace, error) {
	if err := os.MkdirAll(filepath.Join(root, certsDirName), 0750); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", root, err)
	}
	return &Workspace{Root: root, stamp: start.Format(stampLayout)}, nil
}

// ArchivePath is where this run's downloaded bundle archive is stored.
func (w *Workspace) ArchivePath() string {
	return filepath.Join(w.Root, archivePrefix+w.stamp+".zip")
}

// ExtractDir is where this run's archive contents are unpacked.
func (w *Workspace) ExtractDir() string {
	return filepath.Join(w.Root, extractPrefix+w.stamp)
}

// ReportPath is where this run's reconciliation report is saved.
func (w *Workspace) ReportPath() string {
	return filepath.Join(w.Root, reportPrefix+w.stamp+".json")
}

// CertsDir holds the split per-certificate PEM files.
func (w *Workspace) CertsDir() string {
	return filepath.Join(w.Root, certsDirName)
}

// SplitCertPath returns the path for split certificate number n.
func (w *Workspace) SplitCertPath(n int) string {
	return filepath.Join(w.CertsDir(), fmt.Sprintf("%s%04d.pem", splitPrefix, n))
}

// SplitCerts lists the split certificate files left by the most recent
// decode, in deterministic order.
func (w *Workspace) SplitCerts() ([]string, error) {
	return util.ListFiles(w.CertsDir(), splitPrefix+"*.pem")
}

// PurgeSplitCerts removes split files from earlier decodes so a fresh split
// never mixes certificates from two bundle versions.
func (w *Workspace) PurgeSplitCerts() error {
	files, err := w.SplitCerts()
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("remove stale split certificate %s: %w", file, err)
		}
	}
	if len(files) > 0 {
		log.Debugf("purged %d stale split certificates from %s", len(files), w.CertsDir())
	}
	return nil
}

// PurgePreviousRuns deletes archives, extraction directories and reports
// left by earlier runs. The split certificate directory is left alone; it
// is only cleared right before a new split.
func (w *Workspace) PurgePreviousRuns() error {
	for _, pattern := range []string{archivePrefix + "*.zip", extractPrefix + "*", reportPrefix + "*.json"} {
		matches, err := util.ListFiles(w.Root, pattern)
		if err != nil {
			return err
		}
		for _, match := range matches {
			switch match {
			case w.ArchivePath(), w.ExtractDir(), w.ReportPath():
				continue
			}
			if err := os.RemoveAll(match); err != nil {
				return fmt.Errorf("remove previous run artifact %s: %w", match, err)
			}
			log.Debugf("removed previous run artifact %s", match)
		}
	}
	return nil
}
