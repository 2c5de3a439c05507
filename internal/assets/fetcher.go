package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"face-tracking-recorder/internal/logger"

	"github.com/sirupsen/logrus"
)

// ============================================================
// MODEL ASSET FETCHER
// ============================================================

// Fetcher resolves model files either from a local static-asset directory
// or from a remote registry, caching remote downloads on disk.
type Fetcher struct {
	Timeout  time.Duration
	CacheDir string
	client   *http.Client
	log      *logrus.Entry
}

// NewFetcher creates a fetcher that stores remote assets under cacheDir.
func NewFetcher(cacheDir string, timeout time.Duration, log logrus.FieldLogger) *Fetcher {
	return &Fetcher{
		Timeout:  timeout,
		CacheDir: cacheDir,
		client:   &http.Client{Timeout: timeout},
		log:      logger.Component(log, "assets"),
	}
}

// IsRemote reports whether base points at an http(s) registry.
func IsRemote(base string) bool {
	u, err := url.Parse(base)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// IsSuccessStatusCode checks if the HTTP status code indicates success
func (f *Fetcher) IsSuccessStatusCode(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// Resolve returns a local filesystem path for name under base.
func (f *Fetcher) Resolve(ctx context.Context, base, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty asset name")
	}

	if !IsRemote(base) {
		path := filepath.Join(base, name)
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", path)
		}
		return path, nil
	}

	target := filepath.Join(f.CacheDir, filepath.Base(name))
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		f.log.Debugf("📦 Using cached %s", target)
		return target, nil
	}

	if err := f.download(ctx, joinURL(base, name), target); err != nil {
		return "", err
	}
	return target, nil
}

func (f *Fetcher) download(ctx context.Context, src, target string) error {
	f.log.Infof("⬇️  Downloading %s", src)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if !f.IsSuccessStatusCode(resp.StatusCode) {
		return fmt.Errorf("GET %s returned status %d", src, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("GET %s returned an empty body", src)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("move into cache: %w", err)
	}

	f.log.Infof("✅ Cached %s (%.1fKB in %v)", filepath.Base(target), float64(n)/1024.0, time.Since(start).Round(time.Millisecond))
	return nil
}

// setHeaders sets headers for asset requests
func (f *Fetcher) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/octet-stream, */*")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "face-tracking-recorder/1.0")
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(name, "/")
}
