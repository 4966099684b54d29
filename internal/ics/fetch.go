package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "weekcal/internal/log"
)

var (
	ErrEmptyURL     = errors.New("ics: source URL is empty")
	ErrNoCachedBody = errors.New("ics: 304 Not Modified without a cached body")
)

// maxBodyBytes caps a single feed body.
const maxBodyBytes = 16 << 20

// Payload is the body of one feed, fresh or from cache.
type Payload struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// cacheRecord is stored as <cacheDir>/<sha256(url)[:16]>.json.
type cacheRecord struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	Body         []byte    `json:"body"`
}

// Fetcher downloads feeds, revalidating with ETag / Last-Modified and falling
// back to the last good body when the network or the server fails.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher. An empty cacheDir disables the disk cache.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// FetchAll fetches every source in order. Failed sources are logged, skipped
// and reported in the error slice.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]Payload, []error) {
	out := make([]Payload, 0, len(sources))
	var errs []error

	for _, src := range sources {
		p, err := f.Fetch(ctx, src)
		if err != nil {
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("%s: %w", src.ID, err))
			continue
		}
		out = append(out, p)
	}
	return out, errs
}

// Fetch returns the body of a single source.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Payload, error) {
	if src.URL == "" {
		return Payload{}, ErrEmptyURL
	}
	if path, ok := localPath(src.URL); ok {
		body, err := os.ReadFile(path)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Source: src, Body: body}, nil
	}

	cached, _ := f.load(src.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Payload{}, err
	}
	if cached.ETag != "" {
		req.Header.Set("If-None-Match", cached.ETag)
	}
	if cached.LastModified != "" {
		req.Header.Set("If-Modified-Since", cached.LastModified)
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fallback(src, cached, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return f.fallback(src, cached, err)
		}
		rec := cacheRecord{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
			Body:         body,
		}
		if err := f.store(rec); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return Payload{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached.Body) == 0 {
			return Payload{}, ErrNoCachedBody
		}
		appLog.Info("ics fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return Payload{Source: src, Body: cached.Body, FromCache: true}, nil

	default:
		return f.fallback(src, cached, fmt.Errorf("ics: unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) fallback(src Source, cached cacheRecord, cause error) (Payload, error) {
	if len(cached.Body) == 0 {
		return Payload{}, cause
	}
	appLog.Error("ics fetch failed, using cached body", cause, "id", src.ID, "url", redactURL(src.URL), "cached_at", cached.UpdatedAt)
	return Payload{Source: src, Body: cached.Body, FromCache: true}, nil
}

func (f *Fetcher) cacheFile(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8])+".json")
}

func (f *Fetcher) load(url string) (cacheRecord, error) {
	var rec cacheRecord
	if f.cacheDir == "" {
		return rec, nil
	}
	data, err := os.ReadFile(f.cacheFile(url))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return cacheRecord{}, err
	}
	if rec.URL != url {
		return cacheRecord{}, nil
	}
	return rec, nil
}

func (f *Fetcher) store(rec cacheRecord) error {
	if f.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(f.cacheDir, 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.cacheDir, ".ics-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.cacheFile(rec.URL))
}

// localPath reports whether u names a file rather than an HTTP resource.
func localPath(u string) (string, bool) {
	if strings.HasPrefix(u, "file://") {
		return strings.TrimPrefix(u, "file://"), true
	}
	if strings.Contains(u, "://") {
		return "", false
	}
	return u, true
}
