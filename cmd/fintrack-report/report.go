package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/prices"
	"fintrack/internal/rates"
	"fintrack/internal/services"
)

func newRateSource(cfg *config.Config, hc *http.Client, logger *log.Logger) services.RateSource {
	client := rates.NewClient(
		rates.WithBaseURL(cfg.RatesAPIURL),
		rates.WithRateLimit(cfg.RatesRequestsPerSecond),
		rates.WithHTTPClient(hc),
		rates.WithLogger(logger),
	)
	return rates.NewProvider(client, cache.NewLRUCache[map[string]float64](1, cfg.RatesRetention),
		rates.WithFreshness(cfg.RatesFreshness),
		rates.WithProviderLogger(logger),
	)
}

func newPriceSource(cfg *config.Config, hc *http.Client, logger *log.Logger) services.PriceSource {
	client := prices.NewClient(
		prices.WithCryptoURL(cfg.PricesCryptoURL),
		prices.WithMetals(cfg.PricesMetalsURL, cfg.PricesMetalsAPIKey),
		prices.WithRateLimit(cfg.PricesRequestsPerSecond),
		prices.WithHTTPClient(hc),
		prices.WithLogger(logger),
	)
	return prices.NewProvider(client, cache.NewLRUCache[map[string]float64](1, prices.DefaultRetention),
		prices.WithFreshness(cfg.PricesFreshness),
		prices.WithProviderLogger(logger),
	)
}

// run loads every view for args and renders them to w.
func run(ctx context.Context, w io.Writer, finance *services.FinanceService, args Args) error {
	prefs, err := finance.ResolvePreferences(ctx, args.User, args.Month, args.Currency)
	if err != nil {
		return err
	}
	dash, err := finance.Dashboard(ctx, args.User, prefs)
	if err != nil {
		return err
	}
	incomes, err := finance.Incomes(ctx, args.User, prefs, "all")
	if err != nil {
		return err
	}
	expenses, err := finance.Expenses(ctx, args.User, prefs)
	if err != nil {
		return err
	}
	debts, err := finance.Debts(ctx, args.User, prefs)
	if err != nil {
		return err
	}
	assets, err := finance.Assets(ctx, args.User, prefs)
	if err != nil {
		return err
	}

	writeDashboard(w, dash)
	writeIncomes(w, incomes)
	writeExpenses(w, expenses)
	writeDebts(w, debts)
	writeAssets(w, assets)
	return nil
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func signed(m services.Money) string {
	if m.Amount < 0 {
		return text.FgRed.Sprint(m.Display)
	}
	return m.Display
}

func writeDashboard(w io.Writer, d services.Dashboard) {
	t := newTable(w, fmt.Sprintf("Dashboard - %s (%s)", d.MonthLabel, d.Currency))
	t.AppendRow(table.Row{"Income", d.Income.Display, d.IncomeCount})
	t.AppendRow(table.Row{"Expenses", d.Expenses.Display, d.ExpenseCount})
	t.AppendRow(table.Row{"Balance", signed(d.Balance), ""})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Debt", d.Debt.Display, d.DebtCount})
	t.AppendRow(table.Row{"Assets", d.Assets.Display, d.AssetCount})
	t.AppendFooter(table.Row{text.Bold.Sprint("Net worth"), text.Bold.Sprint(signed(d.NetWorth)), ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.SetCaption(d.Subtitle)
	t.Render()

	if !d.RateAvailable {
		fmt.Fprintln(w, text.FgYellow.Sprint("Exchange rate unavailable: amounts are shown unconverted."))
	}
	if len(d.RecentActivity) > 0 {
		a := newTable(w, "Recent activity")
		a.AppendHeader(table.Row{"When", "Type", "Description"})
		for _, act := range d.RecentActivity {
			a.AppendRow(table.Row{act.Timestamp.Format(time.DateTime), act.Type, act.Description})
		}
		a.Render()
	}
}

func writeIncomes(w io.Writer, o services.IncomeOverview) {
	t := newTable(w, "Incomes")
	t.AppendHeader(table.Row{"Date", "Title", "Category", "Status", "Amount"})
	for _, row := range o.Items {
		t.AppendRow(table.Row{row.Date, row.Title, row.Category, row.Status, row.Converted.Display})
	}
	t.AppendFooter(table.Row{"", "", "", "Expected", o.TotalExpected.Display})
	t.AppendFooter(table.Row{"", "", "", "Received", o.TotalReceived.Display})
	t.AppendFooter(table.Row{"", "", "", text.Bold.Sprint("Total"), text.Bold.Sprint(o.Total.Display)})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 5, Align: text.AlignRight}})
	if len(o.ByCategory) > 0 {
		parts := make([]string, 0, len(o.ByCategory))
		for _, c := range o.ByCategory {
			parts = append(parts, c.Category+" "+c.Total.Display)
		}
		t.SetCaption("By category: " + strings.Join(parts, ", "))
	}
	t.Render()
}

func writeExpenses(w io.Writer, o services.ExpenseOverview) {
	t := newTable(w, "Expenses")
	t.AppendHeader(table.Row{"Date", "Title", "Category", "Type", "Status", "Amount"})
	for _, row := range o.Items {
		t.AppendRow(table.Row{row.Date, row.Title, row.Category, row.Type, row.Status, row.Converted.Display})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Fixed", o.Fixed.Display})
	t.AppendFooter(table.Row{"", "", "", "", "Variable", o.Variable.Display})
	t.AppendFooter(table.Row{"", "", "", "", "Pending", o.Pending.Display})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 6, Align: text.AlignRight}})
	t.Render()
}

func writeDebts(w io.Writer, o services.DebtOverview) {
	t := newTable(w, "Debts")
	t.AppendHeader(table.Row{"Due", "Title", "Creditor", "Type", "Status", "Remaining"})
	for _, row := range o.Items {
		due := "-"
		if row.DueDate != nil {
			due = *row.DueDate
		}
		t.AppendRow(table.Row{due, row.Title, row.Creditor, row.Type, row.Status, row.Converted.Display})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Short term", o.ShortTerm.Display})
	t.AppendFooter(table.Row{"", "", "", "", "Long term", o.LongTerm.Display})
	t.AppendFooter(table.Row{"", "", "", "", text.Bold.Sprint("Pending"), text.Bold.Sprint(o.Pending.Display)})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 6, Align: text.AlignRight}})
	t.Render()
}

func writeAssets(w io.Writer, o services.AssetOverview) {
	t := newTable(w, "Assets")
	t.AppendHeader(table.Row{"Type", "Quantity", "Price", "Value"})
	live := false
	for _, row := range o.Items {
		price := fmt.Sprintf("%g %s", row.PricePerUnit, row.Currency)
		if row.LivePrice {
			price += " *"
			live = true
		}
		t.AppendRow(table.Row{row.Type, fmt.Sprintf("%g %s", row.Quantity, row.Unit), price, row.Value.Display})
	}
	t.AppendFooter(table.Row{"", "", text.Bold.Sprint("Total"), text.Bold.Sprint(o.Total.Display)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	if live {
		t.SetCaption("* live market price")
	}
	t.Render()
}
