package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alexflint/go-arg"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/seed"
	"fintrack/internal/services"
)

type Args struct {
	DB       string `arg:"--db,env:SQLITE_DB_PATH" default:"./data/fintrack.db" help:"Path to the SQLite database."`
	User     string `arg:"--user,required" help:"User ID to report on."`
	Month    string `arg:"--month" help:"Month to report as YYYY-MM, or 'all'. Defaults to the saved selection."`
	Currency string `arg:"--currency" help:"Display currency: USD or TRY. Defaults to the saved currency."`
	Seed     string `arg:"--seed" help:"YAML fixture to import for the user before reporting."`
	Rate     bool   `arg:"--rate" help:"Fetch the TRY per USD rate from the rates API. Without it TRY amounts are not converted."`
	Prices   bool   `arg:"--prices" help:"Price auto-update assets at live market quotes."`
}

func (Args) Description() string {
	return "Prints the fintrack dashboard and the income, expense, debt and asset overviews of a user."
}

func main() {
	var args Args
	arg.MustParse(&args)

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentReport)
	cfg := config.Load()

	repo := cli.InitSQLite(logger, args.DB)
	defer repo.Close()

	upstream := &http.Client{Timeout: cfg.UpstreamTimeout}
	var rates services.RateSource
	if args.Rate {
		rates = newRateSource(cfg, upstream, logger)
	}
	opts := []services.Option{
		services.WithLocation(cfg.Location()),
		services.WithLogger(logger),
	}
	if args.Prices {
		opts = append(opts, services.WithPriceSource(newPriceSource(cfg, upstream, logger)))
	}
	finance := services.NewFinanceService(repo, rates, nil, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if args.Seed != "" {
		fixture, err := seed.LoadFile(args.Seed)
		if err != nil {
			logger.Error("Failed to load fixture", log.FieldError, err, "path", args.Seed)
			os.Exit(1)
		}
		sum, err := fixture.Apply(ctx, finance, args.User)
		if err != nil {
			logger.Error("Failed to import fixture", log.FieldError, err, "path", args.Seed)
			os.Exit(1)
		}
		logger.Info("Imported fixture", "path", args.Seed,
			"incomes", sum.Incomes, "expenses", sum.Expenses, "debts", sum.Debts, "assets", sum.Assets)
	}

	if err := run(ctx, os.Stdout, finance, args); err != nil {
		fmt.Fprintln(os.Stderr, "fintrack-report:", err)
		os.Exit(1)
	}
}
