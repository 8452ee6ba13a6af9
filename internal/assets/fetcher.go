// Package assets resolves background image references to bytes the PDF sink can embed.
package assets

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// BundledPrefix marks references served from the embedded default or the local filesystem.
const BundledPrefix = "bundled:"

// DefaultImageName is the embedded default background.
const DefaultImageName = "certificate-template.png"

//go:embed bundled/certificate-template.png
var defaultBackground []byte

// DefaultBackground returns a copy of the embedded default background.
func DefaultBackground() []byte {
	out := make([]byte, len(defaultBackground))
	copy(out, defaultBackground)
	return out
}

// ObjectReader reads object-storage keys; satisfied by *storage.Client.
type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string, limit int64) ([]byte, error)
}

// Fetcher implements certificate.ImageFetcher over HTTP(S) URLs, bundled
// files and object-storage keys, normalising everything to JPEG or PNG.
type Fetcher struct {
	client   *http.Client
	objects  ObjectReader
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

// Options configure a Fetcher.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	// HTTPClient overrides the default client; its own Timeout is left alone.
	HTTPClient *http.Client
}

// NewFetcher builds a fetcher. objects may be nil when no object storage is configured.
func NewFetcher(objects ObjectReader, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, objects: objects, timeout: opts.Timeout, maxBytes: opts.MaxBytes, logger: logger}
}

// FetchBytes 读取并规范化背景图。超时由 Fetcher 自身控制。
func (f *Fetcher) FetchBytes(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("empty image reference")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	raw, err := f.read(ctx, ref)
	if err != nil {
		return nil, err
	}
	out, err := Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", ref, err)
	}
	f.logger.Debug("background fetched",
		slog.String("ref", ref),
		slog.Int("bytes", len(out)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (f *Fetcher) read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, BundledPrefix):
		return f.readBundled(strings.TrimPrefix(ref, BundledPrefix))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.readURL(ctx, ref)
	default:
		if f.objects == nil {
			return nil, fmt.Errorf("object storage not configured for %q", ref)
		}
		return f.objects.ReadObject(ctx, strings.TrimPrefix(ref, "/"), f.maxBytes)
	}
}

func (f *Fetcher) readBundled(name string) ([]byte, error) {
	if name == DefaultImageName {
		return DefaultBackground(), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read bundled image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("bundled image %q exceeds %d bytes", name, f.maxBytes)
	}
	return data, nil
}

func (f *Fetcher) readURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %q: unexpected status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", url, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("image %q exceeds %d bytes", url, f.maxBytes)
	}
	return data, nil
}
