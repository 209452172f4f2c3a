package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/smallstep/pkcs7"

	"github.com/cacstrap/cacstrap/internal/workspace"
)

var (
	// ErrExtractionFailed means the downloaded archive is corrupt or unreadable.
	ErrExtractionFailed = errors.New("bundle extraction failed")
	// ErrBundleFormat means the archive holds no PKCS#7 object.
	ErrBundleFormat = errors.New("no PKCS#7 object found in bundle")
	// ErrConversionFailed means no decode strategy produced certificates.
	ErrConversionFailed = errors.New("PKCS#7 conversion failed")
)

const (
	maxScanDepth   = 3
	convertTimeout = 30 * time.Second

	pemCertBegin = "-----BEGIN CERTIFICATE-----"
	pemCertEnd   = "-----END CERTIFICATE-----"
)

// Certificate is one split trust anchor candidate: the file fed to the
// trust store plus a content fingerprint over its normalized PEM bytes.
type Certificate struct {
	Path        string
	Fingerprint string
}

// Bundle is the ordered set of distinct certificates decoded from one
// PKCS#7 object.
type Bundle struct {
	Source string
	Certs  []Certificate
}

// Paths returns the split certificate file paths in bundle order.
func (b *Bundle) Paths() []string {
	paths := make([]string, 0, len(b.Certs))
	for _, cert := range b.Certs {
		paths = append(paths, cert.Path)
	}
	return paths
}

// Decode extracts the downloaded archive, converts the contained PKCS#7
// object to PEM and splits it into one file per certificate inside the
// workspace. Stale split files from earlier decodes are purged before the
// new set is written, so the resulting file set always matches the current
// bundle exactly.
func Decode(ctx context.Context, archivePath string, ws *workspace.Workspace) (*Bundle, error) {
	if err := extractArchive(archivePath, ws.ExtractDir()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	p7Path, err := findPKCS7(ws.ExtractDir())
	if err != nil {
		return nil, err
	}
	log.Infof("found PKCS#7 object %s", p7Path)

	pemData, err := convert(ctx, p7Path)
	if err != nil {
		return nil, err
	}

	if err := ws.PurgeSplitCerts(); err != nil {
		return nil, fmt.Errorf("purge stale split certificates: %w", err)
	}

	certs, err := split(pemData, ws)
	if err != nil {
		return nil, err
	}

	log.Infof("split bundle into %d certificates", len(certs))
	return &Bundle{Source: p7Path, Certs: certs}, nil
}

func extractArchive(archivePath, dstDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := os.MkdirAll(dstDir, 0750); err != nil {
		return err
	}

	for _, file := range reader.File {
		name := filepath.Clean(file.Name)
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes extraction dir: %s", file.Name)
		}
		target := filepath.Join(dstDir, name)

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0750); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return err
		}
		if err := extractFile(file, target); err != nil {
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	in, err := file.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// findPKCS7 locates the PKCS#7 object by extension within a bounded
// directory depth. If the archive ever ships more than one candidate the
// first in deterministic (sorted path) order is used and a warning logged.
func findPKCS7(root string) (string, error) {
	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if scanDepth(root, path) > maxScanDepth {
				return fs.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".p7b", ".p7c":
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBundleFormat, err)
	}

	if len(candidates) == 0 {
		return "", ErrBundleFormat
	}
	sort.Strings(candidates)
	if len(candidates) > 1 {
		log.Warnf("bundle contains %d PKCS#7 objects, using %s", len(candidates), candidates[0])
	}
	return candidates[0], nil
}

func scanDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return maxScanDepth + 1
	}
	return len(strings.Split(rel, string(os.PathSeparator)))
}

type convertStrategy struct {
	name string
	fn   func(data []byte) ([]byte, error)
}

// The object is usually DER; some bundle revisions ship it base64 or PEM
// encoded instead, so a text decode runs when the binary parse yields
// nothing.
var convertStrategies = []convertStrategy{
	{"binary", convertDER},
	{"text", convertText},
}

// convert turns the PKCS#7 object into concatenated PEM certificates,
// trying each decode strategy in order and short-circuiting on the first
// that produces output. The whole conversion runs under a deadline so a
// pathological object cannot hang the run.
func convert(ctx context.Context, p7Path string) ([]byte, error) {
	data, err := os.ReadFile(p7Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	type result struct {
		pem []byte
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		var lastErr error
		for _, strategy := range convertStrategies {
			pemData, err := strategy.fn(data)
			if err == nil && len(pemData) > 0 {
				resCh <- result{pem: pemData}
				return
			}
			if err != nil {
				log.Debugf("PKCS#7 %s decode failed: %v", strategy.name, err)
				lastErr = err
			}
		}
		if lastErr == nil {
			lastErr = errors.New("no certificates decoded")
		}
		resCh <- result{err: lastErr}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, ctx.Err())
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConversionFailed, res.err)
		}
		return res.pem, nil
	}
}

func convertDER(data []byte) ([]byte, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, err
	}
	return certsToPEM(p7.Certificates), nil
}

func convertText(data []byte) ([]byte, error) {
	// already concatenated PEM certificates pass straight through
	if bytes.Contains(data, []byte(pemCertBegin)) {
		return data, nil
	}

	raw := data
	if block, _ := pem.Decode(data); block != nil {
		raw = block.Bytes
	} else {
		compact := strings.Join(strings.Fields(string(data)), "")
		decoded, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return nil, fmt.Errorf("object is neither PEM nor base64: %w", err)
		}
		raw = decoded
	}

	p7, err := pkcs7.Parse(raw)
	if err != nil {
		return nil, err
	}
	return certsToPEM(p7.Certificates), nil
}

func certsToPEM(certs []*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, cert := range certs {
		_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	}
	return buf.Bytes()
}

// split writes one file per certificate, delimited by the PEM begin marker.
// Sections without a complete certificate marker pair (the leading chunk of
// a file with a text preamble, or a trailing artifact) are dropped rather
// than treated as an error. Duplicate certificate content within one bundle
// is written once.
func split(pemData []byte, ws *workspace.Workspace) ([]Certificate, error) {
	parts := strings.Split(string(pemData), pemCertBegin)

	var certs []Certificate
	seen := make(map[string]bool)
	for _, part := range parts {
		end := strings.Index(part, pemCertEnd)
		if end < 0 {
			continue
		}

		// trailing text after the END marker (openssl-style subject
		// preambles of the next entry) is not part of the certificate
		content := pemCertBegin + part[:end+len(pemCertEnd)] + "\n"
		fp := fingerprint([]byte(content))
		if seen[fp] {
			log.Warnf("bundle contains duplicate certificate %s, keeping first copy", fp[:12])
			continue
		}
		seen[fp] = true

		path := ws.SplitCertPath(len(certs) + 1)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, fmt.Errorf("write split certificate %s: %w", path, err)
		}
		certs = append(certs, Certificate{Path: path, Fingerprint: fp})
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: bundle contained no certificates", ErrConversionFailed)
	}
	return certs, nil
}

func fingerprint(pemText []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(pemText))
	return hex.EncodeToString(sum[:])
}
