package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/thlib/go-timezone-local/tzlocal"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	// CIDRs whose X-Forwarded-For names the client
	TrustedProxies []string

	// Database
	SQLiteDBPath string

	// AMQP (optional, activity events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Exchange rates
	RatesAPIURL            string
	RatesBaseCurrency      string
	RatesFreshness         time.Duration
	RatesRetention         time.Duration
	RatesRequestsPerSecond float64

	// Live asset quotes for assets marked auto-update
	PricesEnabled           bool
	PricesCryptoURL         string
	PricesMetalsURL         string
	PricesMetalsAPIKey      string
	PricesFreshness         time.Duration
	PricesRequestsPerSecond float64

	// Timeout of every upstream HTTP call
	UpstreamTimeout time.Duration

	// Month boundaries are computed in this zone
	TimeZone string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "activity"),

		RatesAPIURL:            getEnv("RATES_API_URL", "https://open.er-api.com/v6"),
		RatesBaseCurrency:      getEnv("RATES_BASE_CURRENCY", "USD"),
		RatesFreshness:         getEnvDuration("RATES_FRESHNESS", time.Hour),
		RatesRetention:         getEnvDuration("RATES_RETENTION", 24*time.Hour),
		RatesRequestsPerSecond: getEnvFloat("RATES_REQUESTS_PER_SECOND", 1),

		PricesEnabled:           getEnvBool("PRICES_ENABLED", true),
		PricesCryptoURL:         getEnv("PRICES_CRYPTO_URL", "https://api.coingecko.com/api/v3"),
		PricesMetalsURL:         getEnv("PRICES_METALS_URL", "https://api.metalpriceapi.com/v1"),
		PricesMetalsAPIKey:      getEnv("PRICES_METALS_API_KEY", ""),
		PricesFreshness:         getEnvDuration("PRICES_FRESHNESS", time.Minute),
		PricesRequestsPerSecond: getEnvFloat("PRICES_REQUESTS_PER_SECOND", 0.5),

		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		TimeZone: getEnv("TIME_ZONE", defaultTimeZone()),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Location resolves TimeZone. Validate has already rejected unknown names.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// AMQP is optional; without it activity rows are written directly
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RatesAPIURL != "" {
		if parsedURL, err := url.Parse(c.RatesAPIURL); err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid rates API URL '%s': must be an http(s) URL", c.RatesAPIURL))
		}
	}
	if c.RatesBaseCurrency != "USD" {
		errors = append(errors, fmt.Sprintf("invalid rates base currency '%s': only USD is supported", c.RatesBaseCurrency))
	}
	if c.RatesFreshness < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates freshness %v: must be at least 1 minute", c.RatesFreshness))
	}
	if c.RatesRetention < c.RatesFreshness {
		errors = append(errors, fmt.Sprintf("invalid rates retention %v: must not be shorter than freshness %v", c.RatesRetention, c.RatesFreshness))
	}
	if c.RatesRequestsPerSecond <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rates request rate %v: must be positive", c.RatesRequestsPerSecond))
	}

	if c.PricesEnabled {
		for name, raw := range map[string]string{"crypto": c.PricesCryptoURL, "metals": c.PricesMetalsURL} {
			if parsedURL, err := url.Parse(raw); err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
				errors = append(errors, fmt.Sprintf("invalid %s prices URL '%s': must be an http(s) URL", name, raw))
			}
		}
		if c.PricesFreshness < 10*time.Second {
			errors = append(errors, fmt.Sprintf("invalid prices freshness %v: must be at least 10 seconds", c.PricesFreshness))
		}
		if c.PricesRequestsPerSecond <= 0 {
			errors = append(errors, fmt.Sprintf("invalid prices request rate %v: must be positive", c.PricesRequestsPerSecond))
		}
	}

	if c.UpstreamTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid upstream timeout %v: must be positive", c.UpstreamTimeout))
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid time zone '%s': %v", c.TimeZone, err))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// defaultTimeZone is the host zone, falling back to UTC when it cannot be determined.
func defaultTimeZone() string {
	name, err := tzlocal.RuntimeTZ()
	if err != nil || name == "" {
		return "UTC"
	}
	return name
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
