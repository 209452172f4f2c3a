package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/cacstrap/cacstrap/internal/system"
)

// ErrUnreachable means the bundle host answered neither the lightweight
// probe nor the ranged fallback request.
var ErrUnreachable = errors.New("bundle host unreachable")

const (
	userAgent    = "cacstrap/%s"
	probeTimeout = 10 * time.Second
	retryDelay   = 3 * time.Second
)

// maxProbeElapsed bounds the reachability retry loop. Variable so tests can
// shrink it.
var maxProbeElapsed = 30 * time.Second

// Fetch verifies the bundle URL is reachable and downloads the archive into
// dstFile. The reachability check retries with backoff; the download itself
// gets a single retry after a short delay.
func Fetch(ctx context.Context, url, dstFile string) error {
	probe := func() error {
		if err := Reachable(ctx, url); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}
	notify := func(err error, duration time.Duration) {
		log.Warnf("bundle host probe failed, retrying in %v: %v", duration, err)
	}
	if err := backoff.RetryNotify(probe, backoff.WithContext(newProbeBackOff(), ctx), notify); err != nil {
		return err
	}

	return downloadToFile(ctx, url, dstFile)
}

// Reachable checks that the bundle URL responds before committing to a full
// transfer. Some mirrors reject HEAD for non-browser clients, so a failed
// probe falls back to a one-byte ranged request; its success is proof
// enough of reachability without pulling the payload twice.
func Reachable(ctx context.Context, url string) error {
	err := request(ctx, url, http.MethodHead, "")
	if err == nil {
		return nil
	}
	log.Debugf("HEAD probe of %s failed, falling back to ranged request: %v", url, err)

	if err := request(ctx, url, http.MethodGet, "bytes=0-0"); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

func request(ctx context.Context, url, method, rangeHeader string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf(userAgent, system.Version()))
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
	}
	return nil
}

func newProbeBackOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      maxProbeElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}

func downloadToFile(ctx context.Context, url, dstFile string) error {
	log.Debugf("starting download from %s", url)

	out, err := os.Create(dstFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %q: %w", dstFile, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			log.Warnf("error closing file %q: %v", dstFile, cerr)
		}
	}()

	err = downloadToFileOnce(ctx, url, out)
	if err == nil {
		log.Infof("successfully downloaded bundle to %s", dstFile)
		return nil
	}

	log.Warnf("download failed, retrying after %v: %v", retryDelay, err)
	if sleepErr := sleepWithContext(ctx, retryDelay); sleepErr != nil {
		return fmt.Errorf("download cancelled during retry delay: %w", sleepErr)
	}

	if err := out.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate file on retry: %w", err)
	}
	if _, err := out.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek to beginning of file: %w", err)
	}

	if err := downloadToFileOnce(ctx, url, out); err != nil {
		return fmt.Errorf("download failed after retry: %w", err)
	}

	log.Infof("successfully downloaded bundle to %s", dstFile)
	return nil
}

func downloadToFileOnce(ctx context.Context, url string, out *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf(userAgent, system.Version()))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write response body to file: %w", err)
	}

	return nil
}

func sleepWithContext(ctx context.Context, duration time.Duration) error {
	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
