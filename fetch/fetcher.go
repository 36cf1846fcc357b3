// Package fetch downloads package archives from remote feeds with retry,
// DNS caching, per-host circuit breaking, and download URL resolution.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
)

var (
	ErrNotFound        = errors.New("archive not found")
	ErrRateLimited     = errors.New("rate limited by feed")
	ErrFeedUnavailable = errors.New("feed unavailable")
)

// Archive is an open download of a package archive.
type Archive struct {
	Body        io.ReadCloser
	Size        int64 // -1 if unknown
	ContentType string
	ETag        string
}

// Downloader fetches archives and probes for their existence.
type Downloader interface {
	Fetch(ctx context.Context, url string) (*Archive, error)
	Head(ctx context.Context, url string) (size int64, contentType string, err error)
}

// Credentials returns basic auth credentials for a request URL.
// ok is false when the URL needs no authentication.
type Credentials func(url string) (username, password string, ok bool)

// Fetcher downloads archives over HTTP.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxRetries  int
	baseDelay   time.Duration
	credentials Credentials
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets the maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithBaseDelay sets the initial delay for exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithCredentials sets the basic auth lookup used for private feeds.
func WithCredentials(fn Credentials) Option {
	return func(f *Fetcher) {
		f.credentials = fn
	}
}

var (
	dnsOnce     sync.Once
	dnsResolver *dnscache.Resolver
)

// sharedResolver returns the process-wide DNS cache, refreshed every five minutes.
func sharedResolver() *dnscache.Resolver {
	dnsOnce.Do(func() {
		dnsResolver = &dnscache.Resolver{}
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				dnsResolver.Refresh(true)
			}
		}()
	})
	return dnsResolver
}

// NewFetcher creates a new Fetcher with the given options.
func NewFetcher(opts ...Option) *Fetcher {
	resolver := sharedResolver()
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  "hishell/1.0",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch opens a download of the archive at url, retrying rate limits and
// server errors. The caller must close the returned Archive.Body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Archive, error) {
	var archive *Archive
	var permanent error

	op := func() error {
		a, err := f.doFetch(ctx, url)
		switch {
		case err == nil:
			archive = a
			return nil
		case errors.Is(err, ErrRateLimited), errors.Is(err, ErrFeedUnavailable):
			return err
		default:
			permanent = err
			return nil
		}
	}

	if err := backoff.Retry(op, f.policy(ctx)); err != nil {
		return nil, err
	}
	if permanent != nil {
		return nil, permanent
	}
	return archive, nil
}

// Download copies the archive at url into w and returns the bytes written.
func (f *Fetcher) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	archive, err := f.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = archive.Body.Close() }()

	n, err := io.Copy(w, archive.Body)
	if err != nil {
		return n, fmt.Errorf("reading %s: %w", url, err)
	}
	return n, nil
}

// policy returns the retry schedule. WithMaxRetries treats 0 as unlimited,
// so no retries maps to StopBackOff.
func (f *Fetcher) policy(ctx context.Context) backoff.BackOff {
	if f.maxRetries <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.baseDelay
	exp.RandomizationFactor = 0.1
	exp.MaxElapsedTime = 0
	if f.baseDelay <= 0 {
		exp.InitialInterval = time.Millisecond
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(f.maxRetries)), ctx)
}

func (f *Fetcher) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	if f.credentials != nil {
		if user, pass, ok := f.credentials(url); ok {
			req.SetBasicAuth(user, pass)
		}
	}
	return req, nil
}

func (f *Fetcher) doFetch(ctx context.Context, url string) (*Archive, error) {
	req, err := f.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetching archive: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return &Archive{
			Body:        resp.Body,
			Size:        contentLength(resp),
			ContentType: resp.Header.Get("Content-Type"),
			ETag:        resp.Header.Get("ETag"),
		}, nil

	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		_ = resp.Body.Close()
		return nil, ErrRateLimited

	case resp.StatusCode >= 500:
		_ = resp.Body.Close()
		return nil, ErrFeedUnavailable

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// Head checks whether an archive exists without downloading it.
func (f *Fetcher) Head(ctx context.Context, url string) (size int64, contentType string, err error) {
	req, err := f.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return 0, "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("head request: %w", err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, "", ErrNotFound
	case resp.StatusCode >= 500:
		return 0, "", ErrFeedUnavailable
	case resp.StatusCode != http.StatusOK:
		return 0, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return contentLength(resp), resp.Header.Get("Content-Type"), nil
}

func contentLength(resp *http.Response) int64 {
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n
		}
	}
	return -1
}
