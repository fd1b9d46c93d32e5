package loader

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sync"
	"time"

	zipline "github.com/ziplinekit/zipline"
)

// Config configures a Loader (spec §4.6).
type Config struct {
	// Chain is the ordered fetch chain used for normal loads.
	Chain Fetcher
	// OfflineChain, if set, is used instead of Chain for the module stage of
	// a fallback load (spec §4.6 "with no network"). If nil, Chain is reused.
	OfflineChain Fetcher
	// EmbeddedManifests holds "<appName>.manifest.zipline.json" files read
	// back during loadOrFallBack.
	EmbeddedManifests fs.FS
	// Concurrency bounds simultaneous module downloads (default 3).
	Concurrency int
	Receiver    Receiver
	Pinner      Pinner
	Listener    zipline.EventListener
}

// LoadedZipline is the result of a successful Load (spec §4.6).
type LoadedZipline struct {
	AppName     string
	Manifest    *Manifest
	ModuleBytes map[string][]byte // sha256Hex -> bytes, for Pin
}

// Loader implements spec §4.6's fetch/verify/dispatch pipeline.
type Loader struct {
	cfg Config
	sem *Semaphore
}

// New creates a Loader from cfg, defaulting Concurrency to 3 and Listener to
// a no-op.
func New(cfg Config) *Loader {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.Listener == nil {
		cfg.Listener = zipline.NoOpEventListener{}
	}
	return &Loader{cfg: cfg, sem: NewSemaphore(cfg.Concurrency)}
}

// Load fetches appName's manifest from manifestURL and loads its modules in
// dependency order.
func (l *Loader) Load(ctx context.Context, appName, manifestURL string) (*LoadedZipline, error) {
	return l.load(ctx, appName, manifestURL, l.cfg.Chain)
}

// LoadOrFallBack attempts Load; on any error, it retries using the embedded
// manifest named "<appName>.manifest.zipline.json" with no network access
// (spec §4.6 "Fallback"). If both fail, the fallback's error is returned.
func (l *Loader) LoadOrFallBack(ctx context.Context, appName, manifestURL string) (*LoadedZipline, error) {
	loaded, err := l.Load(ctx, appName, manifestURL)
	if err == nil {
		return loaded, nil
	}

	if l.cfg.EmbeddedManifests == nil {
		return nil, err
	}
	manifestBytes, readErr := fs.ReadFile(l.cfg.EmbeddedManifests, appName+".manifest.zipline.json")
	if readErr != nil {
		return nil, fmt.Errorf("loader: reading embedded manifest for %q: %w", appName, readErr)
	}

	offline := l.cfg.OfflineChain
	if offline == nil {
		offline = l.cfg.Chain
	}
	return l.loadFromManifestBytes(ctx, appName, manifestURL, manifestBytes, offline)
}

func (l *Loader) load(ctx context.Context, appName, manifestURL string, chain Fetcher) (*LoadedZipline, error) {
	manifestBytes, err := chain.Fetch(ctx, "<manifest>", sentinelSha256(), manifestURL)
	if err != nil {
		return nil, fmt.Errorf("loader: fetching manifest for %q: %w", appName, err)
	}
	if len(manifestBytes) == 0 {
		return nil, &zipline.ModuleUnavailableError{ModuleID: "<manifest>", URL: manifestURL}
	}
	return l.loadFromManifestBytes(ctx, appName, manifestURL, manifestBytes, chain)
}

func (l *Loader) loadFromManifestBytes(ctx context.Context, appName, manifestURL string, manifestBytes []byte, chain Fetcher) (*LoadedZipline, error) {
	manifest, err := parseManifest(manifestBytes, appName, manifestURL)
	if err != nil {
		l.cfg.Listener.ManifestParseFailed(appName, manifestURL, err)
		return nil, err
	}
	if err := checkAcyclic(manifest); err != nil {
		return nil, err
	}

	l.cfg.Listener.ApplicationLoadStart(appName)
	moduleBytes, err := l.runModuleStage(ctx, appName, manifest, chain)
	if err != nil {
		l.cfg.Listener.ApplicationLoadFailed(appName, err)
		return nil, err
	}
	l.cfg.Listener.ApplicationLoadEnd(appName)

	if l.cfg.Pinner != nil {
		_ = l.cfg.Pinner.Pin(appName, manifestBytes, moduleBytes)
	}

	return &LoadedZipline{AppName: appName, Manifest: manifest, ModuleBytes: moduleBytes}, nil
}

// runModuleStage fetches every module concurrently, bounded by the download
// semaphore, and dispatches each to the Receiver strictly after its
// dependencies' Receive calls have returned (spec §4.6 "Ordering guarantee").
func (l *Loader) runModuleStage(ctx context.Context, appName string, manifest *Manifest, chain Fetcher) (map[string][]byte, error) {
	done := make(map[string]chan struct{}, len(manifest.Modules))
	for _, mod := range manifest.Modules {
		done[mod.ID] = make(chan struct{})
	}

	var (
		mu       sync.Mutex
		failed   = make(map[string]bool, len(manifest.Modules))
		firstErr error
		out      = make(map[string][]byte, len(manifest.Modules))
		wg       sync.WaitGroup
	)

	recordErr := func(id string, err error) {
		mu.Lock()
		failed[id] = true
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, mod := range manifest.Modules {
		mod := mod
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[mod.ID])

			if err := l.sem.Acquire(ctx); err != nil {
				recordErr(mod.ID, err)
				return
			}
			l.cfg.Listener.DownloadStart(appName, mod.URL)
			b, err := chain.Fetch(ctx, mod.ID, mod.Sha256, mod.URL)
			l.sem.Release()
			if err != nil {
				l.cfg.Listener.DownloadFailed(appName, mod.URL, err)
				recordErr(mod.ID, err)
				return
			}
			if len(b) == 0 {
				err := &zipline.ModuleUnavailableError{ModuleID: mod.ID, URL: mod.URL}
				l.cfg.Listener.DownloadFailed(appName, mod.URL, err)
				recordErr(mod.ID, err)
				return
			}
			l.cfg.Listener.DownloadEnd(appName, mod.URL)

			sum := sha256.Sum256(b)
			if got := hex.EncodeToString(sum[:]); got != mod.Sha256 {
				recordErr(mod.ID, &zipline.Sha256MismatchError{ModuleID: mod.ID, Want: mod.Sha256, Got: got})
				return
			}

			for _, depID := range mod.DependsOnIDs {
				// checkAcyclic already rejected any dependsOnIds entry with
				// no corresponding module, so depDone is always present.
				depDone := done[depID]
				select {
				case <-depDone:
				case <-ctx.Done():
					recordErr(mod.ID, ctx.Err())
					return
				}
				mu.Lock()
				depFailed := failed[depID]
				mu.Unlock()
				if depFailed {
					recordErr(mod.ID, fmt.Errorf("loader: module %q skipped: dependency %q failed", mod.ID, depID))
					return
				}
			}

			if err := l.cfg.Receiver.Receive(ctx, mod.ID, b); err != nil {
				recordErr(mod.ID, err)
				return
			}

			mu.Lock()
			out[mod.Sha256] = b
			mu.Unlock()
		}()
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// LoadContinuously re-loads on each value received from urls (or each tick
// of pollInterval, re-using the last URL), emitting a LoadedZipline only
// when its manifest differs structurally from the previous emission (spec
// §4.6 "Continuous mode"). The returned channel is closed when ctx is done.
func (l *Loader) LoadContinuously(ctx context.Context, appName string, urls <-chan string, pollInterval time.Duration) <-chan *LoadedZipline {
	out := make(chan *LoadedZipline)

	go func() {
		defer close(out)

		var lastURL string
		var lastManifest *Manifest
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		attempt := func(url string) {
			if url == "" {
				return
			}
			loaded, err := l.Load(ctx, appName, url)
			if err != nil {
				return
			}
			if lastManifest != nil && lastManifest.equal(loaded.Manifest) {
				return
			}
			lastManifest = loaded.Manifest
			select {
			case out <- loaded:
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case url, ok := <-urls:
				if !ok {
					return
				}
				lastURL = url
				attempt(url)
			case <-ticker.C:
				attempt(lastURL)
			}
		}
	}()

	return out
}

func sentinelSha256() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	sum := sha256.Sum256(b[:])
	return hex.EncodeToString(sum[:])
}
