package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// DefaultTripThreshold is the number of consecutive feed failures that open a breaker.
const DefaultTripThreshold = 5

// CircuitBreakerFetcher wraps a Downloader with one circuit breaker per feed host.
// Missing archives do not count as failures.
type CircuitBreakerFetcher struct {
	fetcher   Downloader
	threshold int64
	breakers  map[string]*circuit.Breaker
	mu        sync.RWMutex
}

// NewCircuitBreakerFetcher wraps f with breakers that trip after
// DefaultTripThreshold consecutive failures.
func NewCircuitBreakerFetcher(f Downloader) *CircuitBreakerFetcher {
	return NewCircuitBreakerFetcherWithThreshold(f, DefaultTripThreshold)
}

// NewCircuitBreakerFetcherWithThreshold wraps f with breakers that trip after
// threshold consecutive failures.
func NewCircuitBreakerFetcherWithThreshold(f Downloader, threshold int) *CircuitBreakerFetcher {
	if threshold <= 0 {
		threshold = DefaultTripThreshold
	}
	return &CircuitBreakerFetcher{
		fetcher:   f,
		threshold: int64(threshold),
		breakers:  make(map[string]*circuit.Breaker),
	}
}

func (cbf *CircuitBreakerFetcher) breaker(host string) *circuit.Breaker {
	cbf.mu.RLock()
	b, ok := cbf.breakers[host]
	cbf.mu.RUnlock()
	if ok {
		return b
	}

	cbf.mu.Lock()
	defer cbf.mu.Unlock()
	if b, ok := cbf.breakers[host]; ok {
		return b
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(cbf.threshold),
	})
	cbf.breakers[host] = b
	return b
}

// call runs fn under the breaker for rawURL. A not-found result is passed
// through without being recorded as a failure.
func (cbf *CircuitBreakerFetcher) call(rawURL string, fn func() error) error {
	host := feedHost(rawURL)
	b := cbf.breaker(host)
	if !b.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrFeedUnavailable)
	}

	var notFound error
	err := b.Call(func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	}, 0)
	if err != nil {
		return err
	}
	return notFound
}

// Fetch wraps the underlying Fetch with circuit breaker logic.
func (cbf *CircuitBreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Archive, error) {
	var archive *Archive
	err := cbf.call(fetchURL, func() error {
		var fetchErr error
		archive, fetchErr = cbf.fetcher.Fetch(ctx, fetchURL)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return archive, nil
}

// Head wraps the underlying Head with circuit breaker logic.
func (cbf *CircuitBreakerFetcher) Head(ctx context.Context, headURL string) (size int64, contentType string, err error) {
	err = cbf.call(headURL, func() error {
		var headErr error
		size, contentType, headErr = cbf.fetcher.Head(ctx, headURL)
		return headErr
	})
	return size, contentType, err
}

// feedHost groups URLs by host for breaker selection.
func feedHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}

// BreakerStates reports "open" or "closed" for every feed host seen so far.
func (cbf *CircuitBreakerFetcher) BreakerStates() map[string]string {
	cbf.mu.RLock()
	defer cbf.mu.RUnlock()

	states := make(map[string]string, len(cbf.breakers))
	for host, b := range cbf.breakers {
		if b.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}
