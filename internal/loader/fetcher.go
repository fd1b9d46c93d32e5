package loader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
)

// Fetcher is one link of the fetch chain described in spec §4.6: given a
// module's identity, it returns its bytes, or (nil, nil) if it has no
// opinion and the chain should try the next fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, moduleID, sha256Hex, url string) ([]byte, error)
}

// ChainFetcher tries each Fetcher in order and returns the first non-empty
// result (spec §4.6 "the first that returns a non-empty value wins").
type ChainFetcher struct {
	Fetchers []Fetcher
}

func (c *ChainFetcher) Fetch(ctx context.Context, moduleID, sha256Hex, url string) ([]byte, error) {
	var lastErr error
	for _, f := range c.Fetchers {
		b, err := f.Fetch(ctx, moduleID, sha256Hex, url)
		if err != nil {
			lastErr = err
			continue
		}
		if len(b) > 0 {
			return b, nil
		}
	}
	return nil, lastErr
}

// EmbeddedFetcher reads `sha256Hex` as a filename from a read-only
// filesystem, returning an empty slice (not an error) when absent, exactly
// matching spec §4.6's embedded fetcher.
type EmbeddedFetcher struct {
	FS fs.FS
}

func (e *EmbeddedFetcher) Fetch(_ context.Context, _ string, sha256Hex, _ string) ([]byte, error) {
	if e.FS == nil {
		return nil, nil
	}
	b, err := fs.ReadFile(e.FS, sha256Hex)
	if err != nil {
		return nil, nil
	}
	return b, nil
}

// CacheStore is the key-value contract a caching fetcher needs; the
// internal/blobstore package supplies filesystem and SQLite implementations.
type CacheStore interface {
	Get(ctx context.Context, sha256Hex string) ([]byte, bool, error)
	Put(ctx context.Context, sha256Hex string, data []byte) error
}

// CachingFetcher implements spec §4.6's `cache.getOrPut(sha256, delegate.fetch)`:
// on a cache hit it returns the cached bytes; on a miss it delegates, then
// stores the result before returning it.
type CachingFetcher struct {
	Cache    CacheStore
	Delegate Fetcher
}

func (c *CachingFetcher) Fetch(ctx context.Context, moduleID, sha256Hex, url string) ([]byte, error) {
	if b, ok, err := c.Cache.Get(ctx, sha256Hex); err == nil && ok {
		return b, nil
	}
	b, err := c.Delegate.Fetch(ctx, moduleID, sha256Hex, url)
	if err != nil || len(b) == 0 {
		return b, err
	}
	_ = c.Cache.Put(ctx, sha256Hex, b)
	return b, nil
}

// HTTPFetcher GETs url (spec §4.6's HTTP fetcher), reporting transport
// failures to the caller rather than treating them as an absent value. The
// SSRF guard applies only to a fetcher built by NewHTTPFetcher; a
// caller-supplied Client, or a nil one (http.DefaultClient), has no such
// guard.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher whose transport resolves DNS and
// validates the resolved address before connecting, adapted from the
// teacher's ssrfSafeDialContext (fetch.go): a TOCTOU-resistant guard against
// manifests pointing modules at private network addresses.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{
			Transport: &http.Transport{DialContext: ssrfSafeDialContext},
		},
	}
}

func (h *HTTPFetcher) Fetch(ctx context.Context, moduleID, sha256Hex, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("loader: building request for module %q: %w", moduleID, err)
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("loader: fetching module %q from %s: %w", moduleID, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loader: module %q: unexpected status %d from %s", moduleID, resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func (h *HTTPFetcher) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

var _ Fetcher = (*ChainFetcher)(nil)
var _ Fetcher = (*EmbeddedFetcher)(nil)
var _ Fetcher = (*CachingFetcher)(nil)
var _ Fetcher = (*HTTPFetcher)(nil)
