package prices

import (
	"context"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/log"
)

const (
	DefaultFreshness    = time.Minute
	DefaultRetention    = time.Hour
	DefaultRetryBackoff = time.Minute
	DefaultFetchTimeout = 15 * time.Second

	cacheKey = "usd"
)

// FallbackQuotes are served for metals when no live quote is known.
var FallbackQuotes = map[string]float64{"gold": 2300, "silver": 28}

// Quoter loads the latest USD quotes keyed by asset kind.
type Quoter interface {
	Quotes(ctx context.Context) (map[string]float64, error)
}

// Provider serves asset quotes from a short-lived cache. Stale quotes are
// served while the upstream is failing, and a failed refresh is not retried
// until the backoff has passed.
type Provider struct {
	quoter       Quoter
	freshness    time.Duration
	retryBackoff time.Duration
	fetchTimeout time.Duration
	fallback     map[string]float64
	cache        *cache.LRUCache[map[string]float64]
	group        singleflight.Group
	logger       *log.Logger
	now          func() time.Time

	mu       sync.Mutex
	failedAt time.Time
	failed   bool
}

// ProviderOption configures the provider
type ProviderOption func(*Provider)

// WithFreshness sets how long quotes are used without refreshing.
func WithFreshness(d time.Duration) ProviderOption {
	return func(p *Provider) { p.freshness = d }
}

// WithRetryBackoff sets the pause after a failed refresh.
func WithRetryBackoff(d time.Duration) ProviderOption {
	return func(p *Provider) { p.retryBackoff = d }
}

// WithFallback replaces FallbackQuotes. nil disables fallbacks.
func WithFallback(quotes map[string]float64) ProviderOption {
	return func(p *Provider) { p.fallback = quotes }
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
func NewProvider(quoter Quoter, store *cache.LRUCache[map[string]float64], opts ...ProviderOption) *Provider {
	p := &Provider{
		quoter:       quoter,
		freshness:    DefaultFreshness,
		retryBackoff: DefaultRetryBackoff,
		fetchTimeout: DefaultFetchTimeout,
		fallback:     FallbackQuotes,
		cache:        store,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache.WithClock(p.now)
	if p.logger == nil {
		p.logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentPrices)
	}
	return p
}

// Prices returns USD prices per unit keyed by lower-case asset kind. The
// result is a fresh map the caller may keep.
func (p *Provider) Prices(ctx context.Context) map[string]float64 {
	entry, cached := p.cache.GetEntry(cacheKey)
	if cached && p.now().Sub(entry.StoredAt) < p.freshness {
		return p.withFallback(entry.Value)
	}

	if !p.backingOff() {
		if quotes, err := p.refresh(ctx); err == nil {
			return p.withFallback(quotes)
		} else if cached {
			p.logger.WarnContext(ctx, "Serving stale asset quotes", log.FieldError, err.Error(), "stored_at", entry.StoredAt)
		} else {
			p.logger.WarnContext(ctx, "Asset quotes unavailable", log.FieldError, err.Error())
		}
	}
	if cached {
		return p.withFallback(entry.Value)
	}
	return p.withFallback(nil)
}

func (p *Provider) withFallback(quotes map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(quotes)+len(p.fallback))
	maps.Copy(out, p.fallback)
	maps.Copy(out, quotes)
	return out
}

func (p *Provider) backingOff() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed && p.now().Sub(p.failedAt) < p.retryBackoff
}

func (p *Provider) recordResult(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = err != nil
	if p.failed {
		p.failedAt = p.now()
	}
}

// refresh fetches once for all concurrent callers, detached from any one
// caller's cancellation.
func (p *Provider) refresh(ctx context.Context) (map[string]float64, error) {
	v, err, _ := p.group.Do(cacheKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()

		quotes, err := p.quoter.Quotes(fetchCtx)
		p.recordResult(err)
		if err != nil {
			return nil, err
		}
		p.cache.Set(cacheKey, quotes)
		p.logger.InfoContext(ctx, "Asset quotes refreshed", "count", len(quotes))
		return quotes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]float64), nil
}
