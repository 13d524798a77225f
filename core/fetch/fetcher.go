// Package fetch implements the single network choke point of the pipeline.
// It shapes requests with a realistic browser identity, retries transient
// failures with backoff, bounds simultaneous in-flight requests with a shared
// limiter, and serves cacheable contexts through a write-once response cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/claudehenchoz/gensi/core"
	"github.com/claudehenchoz/gensi/internal/logger"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxParallel = 5
	defaultAttempts    = 3
	defaultBackoff     = 500 * time.Millisecond

	// A consistent desktop-browser signature maximizes compatibility with
	// sites that gate on client fingerprinting.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"
)

// Options configures a Fetcher. Zero values pick the documented defaults.
type Options struct {
	Cache       *Cache // nil disables caching for the run
	MaxParallel int64
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Log         *logger.Logger
}

// Fetcher is the concrete core.Fetcher used by the whole pipeline.
type Fetcher struct {
	client      *http.Client
	cache       *Cache
	sem         *semaphore.Weighted
	flight      singleflight.Group
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	log         *logger.Logger
}

// New creates a Fetcher with the given options.
func New(opts Options) *Fetcher {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Log == nil {
		opts.Log = logger.New("info")
	}

	return &Fetcher{
		client:      &http.Client{Timeout: opts.Timeout},
		cache:       opts.Cache,
		sem:         semaphore.NewWeighted(opts.MaxParallel),
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		log:         opts.Log,
	}
}

// Fetch retrieves text content from a URL under the given pipeline context.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, fc core.FetchContext) (*core.Document, error) {
	return f.fetch(ctx, rawURL, fc, false)
}

// FetchBinary retrieves binary content (images, covers) from a URL.
func (f *Fetcher) FetchBinary(ctx context.Context, rawURL string, fc core.FetchContext) (*core.Document, error) {
	return f.fetch(ctx, rawURL, fc, true)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, fc core.FetchContext, binary bool) (*core.Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &Error{Kind: KindMalformedURL, URL: rawURL, Err: err}
	}

	if f.cache == nil || !fc.Cacheable() {
		return f.doWithRetry(ctx, rawURL)
	}

	// Write-once semantics: concurrent requesters for the same key share a
	// single underlying fetch.
	key := cacheKey(rawURL, binary)
	v, err, _ := f.flight.Do(key, func() (any, error) {
		if content, finalURL, ok := f.cache.get(rawURL, binary); ok {
			f.log.Debug("cache hit", "url", rawURL)
			return &core.Document{Body: content, FinalURL: finalURL}, nil
		}

		doc, err := f.doWithRetry(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if err := f.cache.put(rawURL, doc.Body, doc.FinalURL, binary); err != nil {
			f.log.Warn("cache write failed", "url", rawURL, "error", err)
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Document), nil
}

// doWithRetry performs the request, retrying transient failure classes a
// bounded number of times with exponential backoff.
func (f *Fetcher) doWithRetry(ctx context.Context, rawURL string) (*core.Document, error) {
	var lastErr error
	delay := f.backoff

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		doc, err := f.do(ctx, rawURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		var fe *Error
		if !errors.As(err, &fe) || !fe.Retryable() {
			return nil, err
		}
		if attempt == f.maxAttempts {
			break
		}

		f.log.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, &Error{Kind: KindConnection, URL: rawURL, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

// do performs one request through the shared admission limiter.
func (f *Fetcher) do(ctx context.Context, rawURL string) (*core.Document, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, &Error{Kind: KindConnection, URL: rawURL, Err: err}
	}
	defer f.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindMalformedURL, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: KindHTTPStatus, URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(rawURL, err)
	}

	return &core.Document{
		Body:     body,
		FinalURL: resp.Request.URL.String(),
	}, nil
}

// classifyTransport maps transport errors onto the taxonomy.
func classifyTransport(rawURL string, err error) *Error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &Error{Kind: KindConnection, URL: rawURL, Err: err}
}

// Describe renders the fetch configuration for verbose output.
func (f *Fetcher) Describe() string {
	cached := "enabled"
	if f.cache == nil {
		cached = "disabled"
	}
	return fmt.Sprintf("timeout %s, %d attempts, cache %s", f.timeout, f.maxAttempts, cached)
}
