// Package prices fetches live USD quotes for the asset kinds that track a
// market price: crypto coins from a CoinGecko-style endpoint and precious
// metals from a metalpriceapi-style endpoint.
package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fintrack/internal/log"
)

const (
	DefaultCryptoURL = "https://api.coingecko.com/api/v3"
	DefaultMetalsURL = "https://api.metalpriceapi.com/v1"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 0.5 // requests per second
)

// Coins are the crypto assets quoted by the crypto endpoint.
var Coins = []string{"bitcoin", "ethereum", "cardano"}

// metalSymbols maps asset kinds to metal symbols.
var metalSymbols = map[string]string{"gold": "XAU", "silver": "XAG"}

// ErrNoQuotes is returned when neither endpoint produced a usable quote.
var ErrNoQuotes = errors.New("no asset quotes available")

// Client reads the latest USD price per unit of each quoted asset kind.
type Client struct {
	cryptoURL  string
	metalsURL  string
	metalsKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithCryptoURL sets the crypto endpoint base URL
func WithCryptoURL(u string) ClientOption {
	return func(c *Client) { c.cryptoURL = strings.TrimRight(u, "/") }
}

// WithMetals sets the metals endpoint base URL and API key. Without a key
// metals are not requested.
func WithMetals(u, apiKey string) ClientOption {
	return func(c *Client) {
		c.metalsURL = strings.TrimRight(u, "/")
		c.metalsKey = apiKey
	}
}

// WithRateLimit sets the outbound request rate shared by both endpoints
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		burst := int(requestsPerSecond)
		if burst < 2 {
			burst = 2
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithHTTPClient replaces the underlying HTTP client. nil is ignored.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		cryptoURL:  DefaultCryptoURL,
		metalsURL:  DefaultMetalsURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentPrices)
	}
	return c
}

// Quotes returns USD prices keyed by lower-case asset kind. A failing endpoint
// is logged and skipped; ErrNoQuotes is returned only when nothing was quoted.
func (c *Client) Quotes(ctx context.Context) (map[string]float64, error) {
	quotes := make(map[string]float64, len(Coins)+len(metalSymbols))

	cryptoErr := c.crypto(ctx, quotes)
	if cryptoErr != nil {
		c.logger.WarnContext(ctx, "Crypto quotes failed", log.FieldError, cryptoErr.Error())
	}

	var metalsErr error
	if c.metalsKey != "" {
		metalsErr = c.metals(ctx, quotes)
		if metalsErr != nil {
			c.logger.WarnContext(ctx, "Metal quotes failed", log.FieldError, metalsErr.Error())
		}
	}

	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoQuotes, errors.Join(cryptoErr, metalsErr))
	}
	c.logger.DebugContext(ctx, "Asset quotes fetched", "count", len(quotes))
	return quotes, nil
}

func (c *Client) crypto(ctx context.Context, into map[string]float64) error {
	q := url.Values{}
	q.Set("ids", strings.Join(Coins, ","))
	q.Set("vs_currencies", "usd")

	var body map[string]map[string]float64
	if err := c.getJSON(ctx, c.cryptoURL+"/simple/price?"+q.Encode(), &body); err != nil {
		return err
	}
	for _, coin := range Coins {
		if usd := body[coin]["usd"]; usd > 0 {
			into[coin] = usd
		}
	}
	return nil
}

type metalsResponse struct {
	Success bool               `json:"success"`
	Rates   map[string]float64 `json:"rates"`
}

func (c *Client) metals(ctx context.Context, into map[string]float64) error {
	symbols := make([]string, 0, len(metalSymbols))
	for _, sym := range metalSymbols {
		symbols = append(symbols, sym)
	}
	q := url.Values{}
	q.Set("api_key", c.metalsKey)
	q.Set("base", "USD")
	q.Set("currencies", strings.Join(symbols, ","))

	var body metalsResponse
	if err := c.getJSON(ctx, c.metalsURL+"/latest?"+q.Encode(), &body); err != nil {
		return err
	}
	if !body.Success {
		return errors.New("metals API reported failure")
	}
	for kind, sym := range metalSymbols {
		// USDXAU is the USD price of one troy ounce
		if usd := body.Rates["USD"+sym]; usd > 0 {
			into[kind] = usd
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prices API error: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
