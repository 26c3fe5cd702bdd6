package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/prices"
	"fintrack/internal/rates"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	logger.Info("Initialized SQLite storage", "path", cfg.SQLiteDBPath)

	// Rates are cached for the retention window; the provider decides freshness.
	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache))
	rateCache := cache.NewLRUCache[map[string]float64](4, cfg.RatesRetention)
	cacheManager.Register(rateCache)
	cacheManager.StartCleanup(10 * time.Minute)

	upstream := &http.Client{Timeout: cfg.UpstreamTimeout}
	ratesClient := rates.NewClient(
		rates.WithBaseURL(cfg.RatesAPIURL),
		rates.WithRateLimit(cfg.RatesRequestsPerSecond),
		rates.WithHTTPClient(upstream),
		rates.WithLogger(logger.WithComponent(log.ComponentRates)),
	)
	provider := rates.NewProvider(ratesClient, rateCache,
		rates.WithFreshness(cfg.RatesFreshness),
		rates.WithFetchTimeout(cfg.UpstreamTimeout+5*time.Second),
		rates.WithProviderLogger(logger.WithComponent(log.ComponentRates)),
	)

	financeOpts := []services.Option{
		services.WithLocation(cfg.Location()),
		services.WithLogger(logger.WithComponent(log.ComponentFinance)),
	}
	if cfg.PricesEnabled {
		priceCache := cache.NewLRUCache[map[string]float64](2, prices.DefaultRetention)
		cacheManager.Register(priceCache)
		pricesClient := prices.NewClient(
			prices.WithCryptoURL(cfg.PricesCryptoURL),
			prices.WithMetals(cfg.PricesMetalsURL, cfg.PricesMetalsAPIKey),
			prices.WithRateLimit(cfg.PricesRequestsPerSecond),
			prices.WithHTTPClient(upstream),
			prices.WithLogger(logger.WithComponent(log.ComponentPrices)),
		)
		financeOpts = append(financeOpts, services.WithPriceSource(prices.NewProvider(pricesClient, priceCache,
			prices.WithFreshness(cfg.PricesFreshness),
			prices.WithProviderLogger(logger.WithComponent(log.ComponentPrices)),
		)))
		logger.Info("Live asset prices enabled", "freshness", cfg.PricesFreshness, "metals", cfg.PricesMetalsAPIKey != "")
	}

	ready := map[string]apphttp.Pinger{"database": repo}

	// AMQP is optional; without it activity rows are written directly
	var publisher services.ActivityPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		ready["broker"] = amqpClient
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - activity is written directly to storage")
	}

	finance := services.NewFinanceService(repo, provider, publisher, financeOpts...)

	srv := apphttp.NewServer(":"+cfg.Port, finance, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger.WithComponent(log.ComponentHTTP),
		Ready:              ready,
		TrustedProxies:     cfg.TrustedProxies,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
	})

	logger.Info("Starting fintrack server", "port", cfg.Port, "time_zone", cfg.TimeZone)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
