package qrcode

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shortlinks/pkg/logging"
)

const (
	DefaultEndpoint = "https://api.qrserver.com/v1/create-qr-code/"
	DefaultSize     = 150
	DefaultTimeout  = 3 * time.Second
	maxImageBytes   = 1 << 20
)

// AssetStore keeps an image and returns a durable URL for it.
type AssetStore interface {
	Put(ctx context.Context, name string, data io.Reader) (string, error)
	Delete(ctx context.Context, name string) error
	NameOf(ref string) string
}

type Config struct {
	Endpoint string
	Size     int
	Timeout  time.Duration
}

// Issuer fetches QR images from an HTTP provider and stores them as assets.
type Issuer struct {
	client *http.Client
	assets AssetStore
	logger *logging.Logger
	cfg    Config
}

func NewIssuer(client *http.Client, assets AssetStore, logger *logging.Logger, cfg Config) *Issuer {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Issuer{client: client, assets: assets, logger: logger, cfg: cfg}
}

// Issue returns the asset URL of a QR image encoding shortURL, or "" when the
// provider or the asset store fails within the timeout.
func (i *Issuer) Issue(ctx context.Context, code, shortURL string) string {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	ref, err := i.fetch(ctx, code, shortURL)
	if err != nil {
		i.logger.Warn(ctx, "qr image not issued", "code", code, "error", err)
		return ""
	}
	i.logger.Debug(ctx, "qr image issued", "code", code, "reference", ref)
	return ref
}

// Discard deletes the image behind reference. Failures are logged.
func (i *Issuer) Discard(ctx context.Context, reference string) {
	name := i.assets.NameOf(reference)
	if name == "" {
		i.logger.Warn(ctx, "qr reference not owned by asset store", "reference", reference)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()
	if err := i.assets.Delete(ctx, name); err != nil {
		i.logger.Warn(ctx, "qr image not discarded", "name", name, "error", err)
		return
	}
	i.logger.Debug(ctx, "qr image discarded", "name", name)
}

func (i *Issuer) fetch(ctx context.Context, code, shortURL string) (string, error) {
	u, err := url.Parse(i.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse qr endpoint: %w", err)
	}
	q := u.Query()
	q.Set("size", fmt.Sprintf("%dx%d", i.cfg.Size, i.cfg.Size))
	q.Set("data", shortURL)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("qr provider returned %d", resp.StatusCode)
	}
	ext, err := imageExtension(resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	return i.assets.Put(ctx, code+ext, io.LimitReader(resp.Body, maxImageBytes))
}

func imageExtension(contentType string) (string, error) {
	if contentType == "" {
		return ".png", nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("bad content type %q: %w", contentType, err)
	}
	switch mediaType {
	case "image/png":
		return ".png", nil
	case "image/jpeg":
		return ".jpg", nil
	case "image/gif":
		return ".gif", nil
	case "image/svg+xml":
		return ".svg", nil
	}
	if strings.HasPrefix(mediaType, "image/") {
		return ".img", nil
	}
	return "", fmt.Errorf("qr provider returned %q, not an image", mediaType)
}
