package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

const (
	DefaultFreshness    = time.Hour
	DefaultRetention    = 24 * time.Hour
	DefaultRetryBackoff = time.Minute
	DefaultFetchTimeout = 15 * time.Second
)

// Fetcher loads the latest rates for a base currency.
type Fetcher interface {
	Latest(ctx context.Context, base string) (map[string]float64, error)
}

// Provider serves the TRY-per-USD rate. A cached rate is used as is while
// fresh. Once stale a refresh is attempted and the stale rate is served if it
// fails. After a failed refresh no new attempt is made until the retry backoff
// has passed. Nothing is served after the retention window.
type Provider struct {
	fetcher      Fetcher
	base         string
	freshness    time.Duration
	retryBackoff time.Duration
	fetchTimeout time.Duration
	cache        *cache.LRUCache[map[string]float64]
	group        singleflight.Group
	logger       *log.Logger
	now          func() time.Time

	mu       sync.Mutex
	failedAt time.Time
	lastErr  error
}

// ProviderOption configures the provider
type ProviderOption func(*Provider)

// WithFreshness sets how long a fetched rate is used without refreshing.
func WithFreshness(d time.Duration) ProviderOption {
	return func(p *Provider) { p.freshness = d }
}

// WithRetryBackoff sets how long to wait after a failed refresh before the
// upstream is tried again.
func WithRetryBackoff(d time.Duration) ProviderOption {
	return func(p *Provider) { p.retryBackoff = d }
}

// WithFetchTimeout bounds one upstream refresh.
func WithFetchTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) { p.fetchTimeout = d }
}

// WithProviderLogger sets the logger
func WithProviderLogger(logger *log.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// NewProvider builds a provider on top of store, whose TTL is the retention window.
func NewProvider(fetcher Fetcher, store *cache.LRUCache[map[string]float64], opts ...ProviderOption) *Provider {
	p := &Provider{
		fetcher:      fetcher,
		base:         string(core.USD),
		freshness:    DefaultFreshness,
		retryBackoff: DefaultRetryBackoff,
		fetchTimeout: DefaultFetchTimeout,
		cache:        store,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache.WithClock(p.now)
	if p.logger == nil {
		p.logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentRates)
	}
	return p
}

// Rate returns the TRY per USD rate. ok is false when no usable rate is known,
// in which case conversion leaves amounts untouched.
func (p *Provider) Rate(ctx context.Context) (float64, bool) {
	entry, cached := p.cache.GetEntry(p.base)
	if cached && p.now().Sub(entry.StoredAt) < p.freshness {
		return tryRate(entry.Value)
	}

	var fetched map[string]float64
	err := p.backoffErr()
	if err == nil {
		fetched, err = p.refresh(ctx)
	}
	if err == nil {
		if r, ok := tryRate(fetched); ok {
			return r, true
		}
	}

	if cached {
		p.logger.WarnContext(ctx, "Serving stale exchange rate", log.FieldError, errString(err), "stored_at", entry.StoredAt)
		return tryRate(entry.Value)
	}
	p.logger.WarnContext(ctx, "Exchange rate unavailable", log.FieldError, errString(err))
	return 0, false
}

// backoffErr returns the last refresh error while the retry backoff is running.
func (p *Provider) backoffErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastErr != nil && p.now().Sub(p.failedAt) < p.retryBackoff {
		return fmt.Errorf("retrying after %s: %w", p.failedAt.Add(p.retryBackoff).Format(time.RFC3339), p.lastErr)
	}
	return nil
}

func (p *Provider) recordResult(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.failedAt = p.now()
	}
}

// refresh fetches once for all concurrent callers and caches usable results.
// The shared fetch is detached from any one caller's cancellation.
func (p *Provider) refresh(ctx context.Context) (map[string]float64, error) {
	v, err, _ := p.group.Do(p.base, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()

		rates, err := p.fetcher.Latest(fetchCtx, p.base)
		if err == nil {
			if _, ok := tryRate(rates); !ok {
				err = fmt.Errorf("%w: %s", ErrRateMissing, core.TRY)
			}
		}
		p.recordResult(err)
		if err != nil {
			return nil, err
		}
		p.cache.Set(p.base, rates)
		p.logger.InfoContext(ctx, "Exchange rate refreshed", log.FieldRate, rates[string(core.TRY)])
		return rates, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]float64), nil
}

func tryRate(rates map[string]float64) (float64, bool) {
	r, ok := rates[string(core.TRY)]
	if !ok || !core.RateAvailable(r) {
		return 0, false
	}
	return r, true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
