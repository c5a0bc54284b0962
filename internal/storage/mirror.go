package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// defaultMaxArtifactBytes caps a single mirrored artifact.
const defaultMaxArtifactBytes = 50 << 20

// Mirror copies provider-hosted artifacts into a Storage.
type Mirror struct {
	store      Storage
	httpClient *http.Client
	prefix     string
	maxBytes   int64
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithMirrorHTTPClient sets the client used to download artifacts.
func WithMirrorHTTPClient(c *http.Client) MirrorOption {
	return func(m *Mirror) {
		m.httpClient = c
	}
}

// WithKeyPrefix sets the object key prefix (default "generations").
func WithKeyPrefix(prefix string) MirrorOption {
	return func(m *Mirror) {
		m.prefix = strings.Trim(prefix, "/")
	}
}

// WithMaxBytes caps the artifact size.
func WithMaxBytes(n int64) MirrorOption {
	return func(m *Mirror) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

// NewMirror creates a Mirror writing to store.
func NewMirror(store Storage, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		store:      store,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		prefix:     "generations",
		maxBytes:   defaultMaxArtifactBytes,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mirror downloads sourceURL and stores it under <prefix>/<predictionID>/<name>.
// It returns the stored object's URL.
func (m *Mirror) Mirror(ctx context.Context, predictionID, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download artifact: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	if int64(len(body)) > m.maxBytes {
		return "", ErrArtifactTooLarge
	}

	key := m.objectKey(predictionID, sourceURL)
	return m.store.Upload(ctx, key, resp.Header.Get("Content-Type"), bytes.NewReader(body))
}

// objectKey builds the storage key for an artifact.
func (m *Mirror) objectKey(predictionID, sourceURL string) string {
	name := "output"
	if u, err := url.Parse(sourceURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			name = base
		}
	}
	return path.Join(m.prefix, predictionID, name)
}
