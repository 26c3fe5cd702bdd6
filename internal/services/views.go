package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
)

// Money is an amount already converted to the display currency.
type Money struct {
	Amount  float64 `json:"amount"`
	Display string  `json:"display"`
}

func displayMoney(conv core.Converter, converted float64) Money {
	return Money{
		Amount:  converted,
		Display: core.Format(converted, conv.Display, conv.Display, conv.Rate),
	}
}

// header is shared by every read model. The window is the date range the
// month selection covers.
type header struct {
	Month         core.MonthSelector `json:"month"`
	MonthLabel    string             `json:"month_label"`
	WindowStart   time.Time          `json:"window_start"`
	WindowEnd     time.Time          `json:"window_end"`
	Currency      core.Currency      `json:"currency"`
	Rate          float64            `json:"rate"`
	RateAvailable bool               `json:"rate_available"`
}

func (s *FinanceService) newHeader(prefs Preferences, conv core.Converter) header {
	window := core.ComputeWindow(prefs.Month, s.now(), s.loc)
	return header{
		Month:         prefs.Month,
		MonthLabel:    prefs.Month.Label(),
		WindowStart:   window.Start,
		WindowEnd:     window.End,
		Currency:      conv.Display,
		Rate:          conv.Rate,
		RateAvailable: core.RateAvailable(conv.Rate),
	}
}

// Dashboard is the overview of one month.
type Dashboard struct {
	header
	Subtitle       string          `json:"subtitle"`
	Balance        Money           `json:"balance"`
	Income         Money           `json:"income"`
	Expenses       Money           `json:"expenses"`
	Debt           Money           `json:"debt"`
	Assets         Money           `json:"assets"`
	NetWorth       Money           `json:"net_worth"`
	IncomeCount    int             `json:"income_count"`
	ExpenseCount   int             `json:"expense_count"`
	DebtCount      int             `json:"debt_count"`
	AssetCount     int             `json:"asset_count"`
	RecentActivity []core.Activity `json:"recent_activity"`
}

// Dashboard loads every collection concurrently and totals the selected month.
// Incomes and expenses are filtered by date, debts by due date; assets are
// never filtered.
func (s *FinanceService) Dashboard(ctx context.Context, userID string, prefs Preferences) (Dashboard, error) {
	if err := requireUser(userID); err != nil {
		return Dashboard{}, err
	}

	var (
		incomes  []core.Income
		expenses []core.Expense
		debts    []core.Debt
		assets   []core.Asset
		activity []core.Activity
		conv     core.Converter
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		incomes, err = s.store.ListIncomes(gctx, userID)
		return wrap("load incomes", err)
	})
	g.Go(func() (err error) {
		expenses, err = s.store.ListExpenses(gctx, userID)
		return wrap("load expenses", err)
	})
	g.Go(func() (err error) {
		debts, err = s.store.ListDebts(gctx, userID)
		return wrap("load debts", err)
	})
	g.Go(func() (err error) {
		assets, err = s.store.ListAssets(gctx, userID)
		if err == nil {
			s.applyLivePrices(gctx, assets)
		}
		return wrap("load assets", err)
	})
	g.Go(func() (err error) {
		activity, err = s.store.RecentActivity(gctx, userID, RecentActivityLimit)
		return wrap("load activity", err)
	})
	g.Go(func() error {
		conv = s.converter(gctx, prefs)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	incomes = core.FilterByMonth(incomes, prefs.Month, core.IncomeDate, s.loc)
	expenses = core.FilterByMonth(expenses, prefs.Month, core.ExpenseDate, s.loc)
	debts = core.FilterByMonth(debts, prefs.Month, core.DebtDueDate, s.loc)

	income := core.Aggregate(incomes, incomeAmount(conv), nil)
	spent := core.Aggregate(expenses, expenseAmount(conv), nil)
	debt := core.Aggregate(debts, debtAmount(conv), nil)
	owned := core.Aggregate(assets, assetValue(conv), nil)

	return Dashboard{
		header:         s.newHeader(prefs, conv),
		Subtitle:       s.subtitle(prefs.Month),
		Balance:        displayMoney(conv, income.Total-spent.Total),
		Income:         displayMoney(conv, income.Total),
		Expenses:       displayMoney(conv, spent.Total),
		Debt:           displayMoney(conv, debt.Total),
		Assets:         displayMoney(conv, owned.Total),
		NetWorth:       displayMoney(conv, owned.Total-debt.Total),
		IncomeCount:    income.Count,
		ExpenseCount:   spent.Count,
		DebtCount:      debt.Count,
		AssetCount:     owned.Count,
		RecentActivity: activity,
	}, nil
}

func (s *FinanceService) subtitle(sel core.MonthSelector) string {
	switch {
	case sel.IsAll():
		return "Financial overview for all dates"
	case core.IsCurrentMonth(sel, s.now(), s.loc):
		return "Overview of your financial health and current balance"
	default:
		return "Financial overview for " + sel.Label()
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func incomeAmount(conv core.Converter) func(core.Income) float64 {
	return func(i core.Income) float64 { return conv.Convert(i.Amount, i.Currency) }
}

func expenseAmount(conv core.Converter) func(core.Expense) float64 {
	return func(e core.Expense) float64 { return conv.Convert(e.Amount, e.Currency) }
}

func debtAmount(conv core.Converter) func(core.Debt) float64 {
	return func(d core.Debt) float64 { return conv.Convert(d.Amount, d.Currency) }
}

func assetValue(conv core.Converter) func(core.Asset) float64 {
	return func(a core.Asset) float64 { return conv.Convert(a.Value(), a.Currency) }
}

// IncomeRow is an income with its converted amount.
type IncomeRow struct {
	core.Income
	Converted Money `json:"converted"`
}

// CategoryTotal is the converted sum of one income category.
type CategoryTotal struct {
	Category string `json:"category"`
	Total    Money  `json:"total"`
}

// IncomeOverview summarises the incomes of a month.
type IncomeOverview struct {
	header
	Status        string          `json:"status"`
	TotalExpected Money           `json:"total_expected"`
	TotalReceived Money           `json:"total_received"`
	Total         Money           `json:"total"`
	ByCategory    []CategoryTotal `json:"by_category"`
	Items         []IncomeRow     `json:"items"`
}

// Incomes returns the month's incomes. status ("", "all", "expected" or
// "received") only narrows the listed items; totals cover the whole month.
func (s *FinanceService) Incomes(ctx context.Context, userID string, prefs Preferences, status string) (IncomeOverview, error) {
	if err := requireUser(userID); err != nil {
		return IncomeOverview{}, err
	}
	if status == "" {
		status = "all"
	}
	if status != "all" && status != string(core.IncomeExpected) && status != string(core.IncomeReceived) {
		return IncomeOverview{}, fmt.Errorf("%w: %q", core.ErrInvalidStatus, status)
	}

	all, err := s.store.ListIncomes(ctx, userID)
	if err != nil {
		return IncomeOverview{}, fmt.Errorf("load incomes: %w", err)
	}
	conv := s.converter(ctx, prefs)
	monthly := core.FilterByMonth(all, prefs.Month, core.IncomeDate, s.loc)
	amount := incomeAmount(conv)

	expected := core.Aggregate(monthly, amount, func(i core.Income) bool { return i.Status == core.IncomeExpected })
	received := core.Aggregate(monthly, amount, func(i core.Income) bool { return i.Status == core.IncomeReceived })
	listed := core.Aggregate(monthly, amount, func(i core.Income) bool { return status == "all" || string(i.Status) == status })

	byCategory := core.SumBy(monthly, func(i core.Income) string { return i.Category }, amount)
	categories := make([]CategoryTotal, 0, len(byCategory))
	for name, total := range byCategory {
		categories = append(categories, CategoryTotal{Category: name, Total: displayMoney(conv, total)})
	}
	sort.Slice(categories, func(a, b int) bool { return categories[a].Category < categories[b].Category })

	items := make([]IncomeRow, 0, listed.Count)
	for _, in := range listed.Items {
		items = append(items, IncomeRow{Income: in, Converted: displayMoney(conv, amount(in))})
	}

	return IncomeOverview{
		header:        s.newHeader(prefs, conv),
		Status:        status,
		TotalExpected: displayMoney(conv, expected.Total),
		TotalReceived: displayMoney(conv, received.Total),
		Total:         displayMoney(conv, expected.Total+received.Total),
		ByCategory:    categories,
		Items:         items,
	}, nil
}

// ExpenseRow is an expense with its converted amount.
type ExpenseRow struct {
	core.Expense
	Converted Money `json:"converted"`
}

// ExpenseOverview summarises the expenses of a month.
type ExpenseOverview struct {
	header
	Fixed    Money        `json:"fixed"`
	Variable Money        `json:"variable"`
	Paid     Money        `json:"paid"`
	Pending  Money        `json:"pending"`
	Items    []ExpenseRow `json:"items"`
}

// Expenses returns the month's expenses with fixed/variable and paid/pending totals.
func (s *FinanceService) Expenses(ctx context.Context, userID string, prefs Preferences) (ExpenseOverview, error) {
	if err := requireUser(userID); err != nil {
		return ExpenseOverview{}, err
	}
	all, err := s.store.ListExpenses(ctx, userID)
	if err != nil {
		return ExpenseOverview{}, fmt.Errorf("load expenses: %w", err)
	}
	conv := s.converter(ctx, prefs)
	monthly := core.FilterByMonth(all, prefs.Month, core.ExpenseDate, s.loc)
	amount := expenseAmount(conv)

	items := make([]ExpenseRow, 0, len(monthly))
	for _, e := range monthly {
		items = append(items, ExpenseRow{Expense: e, Converted: displayMoney(conv, amount(e))})
	}

	return ExpenseOverview{
		header:   s.newHeader(prefs, conv),
		Fixed:    displayMoney(conv, core.Aggregate(monthly, amount, func(e core.Expense) bool { return e.Type == core.ExpenseFixed }).Total),
		Variable: displayMoney(conv, core.Aggregate(monthly, amount, func(e core.Expense) bool { return e.Type == core.ExpenseVariable }).Total),
		Paid:     displayMoney(conv, core.Aggregate(monthly, amount, func(e core.Expense) bool { return e.Status == core.ExpensePaid }).Total),
		Pending:  displayMoney(conv, core.Aggregate(monthly, amount, func(e core.Expense) bool { return e.Status == core.ExpensePending }).Total),
		Items:    items,
	}, nil
}

// DebtRow is a debt with its converted amount.
type DebtRow struct {
	core.Debt
	Converted Money `json:"converted"`
}

// DebtOverview summarises the debts due in a month.
type DebtOverview struct {
	header
	ShortTerm Money     `json:"short_term"`
	LongTerm  Money     `json:"long_term"`
	Pending   Money     `json:"pending"`
	Paid      Money     `json:"paid"`
	Items     []DebtRow `json:"items"`
}

// Debts returns the debts due in the month. Debts without a due date only
// appear when every month is selected.
func (s *FinanceService) Debts(ctx context.Context, userID string, prefs Preferences) (DebtOverview, error) {
	if err := requireUser(userID); err != nil {
		return DebtOverview{}, err
	}
	all, err := s.store.ListDebts(ctx, userID)
	if err != nil {
		return DebtOverview{}, fmt.Errorf("load debts: %w", err)
	}
	conv := s.converter(ctx, prefs)
	monthly := core.FilterByMonth(all, prefs.Month, core.DebtDueDate, s.loc)
	amount := debtAmount(conv)

	items := make([]DebtRow, 0, len(monthly))
	for _, d := range monthly {
		items = append(items, DebtRow{Debt: d, Converted: displayMoney(conv, amount(d))})
	}

	return DebtOverview{
		header:    s.newHeader(prefs, conv),
		ShortTerm: displayMoney(conv, core.Aggregate(monthly, amount, func(d core.Debt) bool { return d.Type == core.DebtShortTerm }).Total),
		LongTerm:  displayMoney(conv, core.Aggregate(monthly, amount, func(d core.Debt) bool { return d.Type == core.DebtLongTerm }).Total),
		Pending:   displayMoney(conv, core.Aggregate(monthly, amount, func(d core.Debt) bool { return d.Status == core.DebtPending }).Total),
		Paid:      displayMoney(conv, core.Aggregate(monthly, amount, func(d core.Debt) bool { return d.Status == core.DebtPaid }).Total),
		Items:     items,
	}, nil
}

// AssetRow is an asset with its converted value. LivePrice marks a price
// per unit taken from the live quotes instead of the stored one.
type AssetRow struct {
	core.Asset
	Value     Money `json:"value"`
	LivePrice bool  `json:"live_price"`
}

// AssetOverview totals the user's holdings by kind.
type AssetOverview struct {
	header
	Total      Money      `json:"total"`
	Silver     Money      `json:"silver"`
	Crypto     Money      `json:"crypto"`
	RealEstate Money      `json:"real_estate"`
	Items      []AssetRow `json:"items"`
}

var cryptoAssets = map[string]bool{"bitcoin": true, "ethereum": true, "cardano": true}

func assetKind(a core.Asset) string { return strings.ToLower(strings.TrimSpace(a.Type)) }

// applyLivePrices reprices auto-updated assets in place with the live USD
// quote for their kind and reports which ones were repriced. Assets without
// a quote keep their stored price.
func (s *FinanceService) applyLivePrices(ctx context.Context, assets []core.Asset) map[string]bool {
	live := make(map[string]bool)
	if s.prices == nil {
		return live
	}
	wanted := false
	for _, a := range assets {
		wanted = wanted || a.AutoUpdate
	}
	if !wanted {
		return live
	}

	quotes := s.prices.Prices(ctx)
	for i := range assets {
		a := &assets[i]
		if !a.AutoUpdate {
			continue
		}
		if price, ok := quotes[assetKind(*a)]; ok && price > 0 {
			a.PricePerUnit = price
			a.Currency = core.USD
			live[a.ID] = true
		}
	}
	return live
}

// Assets returns every asset; holdings are not tied to a month.
func (s *FinanceService) Assets(ctx context.Context, userID string, prefs Preferences) (AssetOverview, error) {
	if err := requireUser(userID); err != nil {
		return AssetOverview{}, err
	}
	all, err := s.store.ListAssets(ctx, userID)
	if err != nil {
		return AssetOverview{}, fmt.Errorf("load assets: %w", err)
	}
	live := s.applyLivePrices(ctx, all)
	conv := s.converter(ctx, prefs)
	value := assetValue(conv)

	items := make([]AssetRow, 0, len(all))
	for _, a := range all {
		items = append(items, AssetRow{Asset: a, Value: displayMoney(conv, value(a)), LivePrice: live[a.ID]})
	}

	return AssetOverview{
		header:     s.newHeader(prefs, conv),
		Total:      displayMoney(conv, core.Aggregate(all, value, nil).Total),
		Silver:     displayMoney(conv, core.Aggregate(all, value, func(a core.Asset) bool { return assetKind(a) == "silver" }).Total),
		Crypto:     displayMoney(conv, core.Aggregate(all, value, func(a core.Asset) bool { return cryptoAssets[assetKind(a)] }).Total),
		RealEstate: displayMoney(conv, core.Aggregate(all, value, func(a core.Asset) bool { return assetKind(a) == "real_estate" }).Total),
		Items:      items,
	}, nil
}

// Asset returns one asset priced like the Assets overview.
func (s *FinanceService) Asset(ctx context.Context, userID, id string, prefs Preferences) (AssetRow, error) {
	if err := requireUser(userID); err != nil {
		return AssetRow{}, err
	}
	a, err := s.store.GetAsset(ctx, userID, id)
	if err != nil {
		return AssetRow{}, fmt.Errorf("load asset: %w", err)
	}
	one := []core.Asset{a}
	live := s.applyLivePrices(ctx, one)
	conv := s.converter(ctx, prefs)
	return AssetRow{Asset: one[0], Value: displayMoney(conv, assetValue(conv)(one[0])), LivePrice: live[a.ID]}, nil
}

// HistoryRow is one annotated history entry ready for display.
type HistoryRow struct {
	core.AnnotatedEntry
	Kind            core.ChangeKind `json:"kind"`
	AmountDisplay   string          `json:"amount_display"`
	PreviousDisplay string          `json:"previous_display"`
	DeltaDisplay    string          `json:"delta_display"`
}

// HistoryView is the amount timeline of one income or debt.
type HistoryView struct {
	Subject  core.Subject  `json:"subject"`
	ParentID string        `json:"parent_id"`
	Title    string        `json:"title"`
	Currency core.Currency `json:"currency"`
	Current  Money         `json:"current"`
	Entries  []HistoryRow  `json:"entries"`
}

// IncomeHistory returns the income's amount changes, oldest first.
func (s *FinanceService) IncomeHistory(ctx context.Context, userID, id string, prefs Preferences) (HistoryView, error) {
	if err := requireUser(userID); err != nil {
		return HistoryView{}, err
	}
	in, err := s.store.GetIncome(ctx, userID, id)
	if err != nil {
		return HistoryView{}, fmt.Errorf("load income: %w", err)
	}
	conv := s.converter(ctx, prefs)
	return historyView(conv, core.SubjectIncome, in.ID, in.Title, in.Amount, in.Currency, core.IncomeHistory(in.History)), nil
}

// DebtHistory returns the debt's balance changes, oldest first.
func (s *FinanceService) DebtHistory(ctx context.Context, userID, id string, prefs Preferences) (HistoryView, error) {
	if err := requireUser(userID); err != nil {
		return HistoryView{}, err
	}
	d, err := s.store.GetDebt(ctx, userID, id)
	if err != nil {
		return HistoryView{}, fmt.Errorf("load debt: %w", err)
	}
	conv := s.converter(ctx, prefs)
	return historyView(conv, core.SubjectDebt, d.ID, d.Title, d.Amount, d.Currency, core.DebtHistory(d.History)), nil
}

func historyView(conv core.Converter, subject core.Subject, id, title string, current float64, currency core.Currency, entries []core.AnnotatedEntry) HistoryView {
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, HistoryRow{
			AnnotatedEntry:  e,
			Kind:            e.Classify(subject),
			AmountDisplay:   conv.Format(e.Amount, currency),
			PreviousDisplay: conv.Format(e.PreviousAmount, currency),
			DeltaDisplay:    formatDelta(conv, e.Delta, currency),
		})
	}
	return HistoryView{
		Subject:  subject,
		ParentID: id,
		Title:    title,
		Currency: conv.Display,
		Current:  displayMoney(conv, conv.Convert(current, currency)),
		Entries:  rows,
	}
}

// formatDelta renders a signed change, e.g. "+$20" or "-$20". No change renders as "$0".
func formatDelta(conv core.Converter, delta float64, from core.Currency) string {
	abs := conv.Format(math.Abs(delta), from)
	switch {
	case math.RoundToEven(conv.Convert(delta, from)) > 0:
		return "+" + abs
	case math.RoundToEven(conv.Convert(delta, from)) < 0:
		return "-" + abs
	default:
		return abs
	}
}
