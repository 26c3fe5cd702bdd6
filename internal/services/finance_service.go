package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// RecentActivityLimit is how many activity rows the dashboard shows.
const RecentActivityLimit = 5

// Preferences select the month and display currency of a read.
type Preferences struct {
	Month    core.MonthSelector `json:"month"`
	Currency core.Currency      `json:"currency"`
}

// FinanceService orchestrates the finance records across storage, the rate
// provider and the activity feed.
type FinanceService struct {
	store      Store
	rates      RateSource
	prices     PriceSource
	activity   *ActivityRecorder
	loc        *time.Location
	now        func() time.Time
	baseLogger *log.Logger
	logger     *log.StructuredLogger
}

// Option configures the service
type Option func(*FinanceService)

// WithLocation sets the zone month boundaries are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *FinanceService) { s.loc = loc }
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *FinanceService) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *FinanceService) { s.baseLogger = logger }
}

// WithPriceSource enables live pricing of auto-updated assets.
func WithPriceSource(prices PriceSource) Option {
	return func(s *FinanceService) { s.prices = prices }
}

// NewFinanceService wires the service. rates and publisher may be nil.
func NewFinanceService(store Store, rates RateSource, publisher ActivityPublisher, opts ...Option) *FinanceService {
	s := &FinanceService{
		store: store,
		rates: rates,
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.baseLogger == nil {
		s.baseLogger = log.New(log.DefaultConfig())
	}
	s.logger = log.NewStructuredLogger(s.baseLogger.WithComponent(log.ComponentFinance))
	s.activity = NewActivityRecorder(store, publisher, s.now, s.baseLogger)
	return s
}

// Location is the zone month boundaries are computed in.
func (s *FinanceService) Location() *time.Location { return s.loc }

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return core.ErrMissingUser
	}
	return nil
}

// ResolvePreferences combines the stored settings with explicit overrides.
// Empty overrides fall back to the stored values.
func (s *FinanceService) ResolvePreferences(ctx context.Context, userID, month, currency string) (Preferences, error) {
	if err := requireUser(userID); err != nil {
		return Preferences{}, err
	}
	settings, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return Preferences{}, fmt.Errorf("load settings: %w", err)
	}
	prefs := Preferences{Month: settings.SelectedMonth, Currency: settings.DefaultCurrency}

	if month != "" {
		sel, err := core.ParseMonthSelector(month)
		if err != nil {
			return Preferences{}, err
		}
		prefs.Month = sel
	}
	if currency != "" {
		c, err := core.ParseCurrency(currency)
		if err != nil {
			return Preferences{}, err
		}
		prefs.Currency = c
	}
	if !prefs.Currency.Valid() {
		prefs.Currency = core.USD
	}
	if prefs.Month == "" {
		prefs.Month = core.AllMonths
	}
	return prefs, nil
}

// converter builds the display converter for prefs. A missing rate gives an
// identity conversion.
func (s *FinanceService) converter(ctx context.Context, prefs Preferences) core.Converter {
	conv := core.Converter{Display: prefs.Currency}
	if s.rates != nil {
		if rate, ok := s.rates.Rate(ctx); ok {
			conv.Rate = rate
		}
	}
	return conv
}

// Settings returns the stored preferences or the defaults.
func (s *FinanceService) Settings(ctx context.Context, userID string) (core.Settings, error) {
	if err := requireUser(userID); err != nil {
		return core.Settings{}, err
	}
	return s.store.GetSettings(ctx, userID)
}

// SaveSettings validates and stores the user's preferences.
func (s *FinanceService) SaveSettings(ctx context.Context, settings core.Settings) (core.Settings, error) {
	sel, err := core.ParseMonthSelector(string(settings.SelectedMonth))
	if err == nil {
		settings.SelectedMonth = sel
	}
	if err := settings.Validate(); err != nil {
		return core.Settings{}, err
	}
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return core.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

// Months lists the month picker options.
func (s *FinanceService) Months() []core.MonthOption {
	return core.MonthOptions(s.now(), s.loc, core.DefaultMonthOptions)
}

// RecentActivity returns the user's latest activity rows.
func (s *FinanceService) RecentActivity(ctx context.Context, userID string, limit int) ([]core.Activity, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.store.RecentActivity(ctx, userID, limit)
}

// CreateIncome validates and stores an income.
func (s *FinanceService) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	created, err := s.store.CreateIncome(ctx, in)
	if err != nil {
		return core.Income{}, fmt.Errorf("save income: %w", err)
	}
	s.logger.LogRecordWritten(ctx, log.OpCreate, created.UserID, core.ActivityIncome, created.ID, created.Amount, string(created.Currency))
	s.activity.Record(ctx, created.UserID, core.ActivityIncome, core.ActionCreate, "Created income: "+created.Title)
	return created, nil
}

// UpdateIncomeAmount changes an income's amount. Expected incomes need a note
// and keep the change in their history.
func (s *FinanceService) UpdateIncomeAmount(ctx context.Context, userID, id string, amount float64, note string) (core.Income, error) {
	if err := requireUser(userID); err != nil {
		return core.Income{}, err
	}
	current, err := s.store.GetIncome(ctx, userID, id)
	if err != nil {
		return core.Income{}, fmt.Errorf("load income: %w", err)
	}
	note = strings.TrimSpace(note)
	if err := core.ValidateIncomeAmountChange(current, amount, note); err != nil {
		return core.Income{}, err
	}
	updated, err := s.store.UpdateIncomeAmount(ctx, userID, id, amount, note)
	if err != nil {
		return core.Income{}, fmt.Errorf("update income amount: %w", err)
	}
	s.logger.LogRecordWritten(ctx, log.OpUpdate, userID, core.ActivityIncome, id, amount, string(updated.Currency))
	s.activity.Record(ctx, userID, core.ActivityIncome, core.ActionEdit, "Updated income: "+updated.Title)
	return updated, nil
}

// UpdateIncome replaces an income's fields. A changed amount goes through
// UpdateIncomeAmount's rules, so an expected income needs a note and the
// change is kept in its history.
func (s *FinanceService) UpdateIncome(ctx context.Context, in core.Income, note string) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	current, err := s.store.GetIncome(ctx, in.UserID, in.ID)
	if err != nil {
		return core.Income{}, fmt.Errorf("load income: %w", err)
	}
	note = strings.TrimSpace(note)
	amountChanged := in.Amount != current.Amount
	if amountChanged {
		// the rule applies to the income as it will be stored
		edited := current
		edited.Status = in.Status
		if err := core.ValidateIncomeAmountChange(edited, in.Amount, note); err != nil {
			return core.Income{}, err
		}
	}

	if err := s.store.UpdateIncome(ctx, in); err != nil {
		return core.Income{}, fmt.Errorf("update income: %w", err)
	}
	updated := in
	updated.CreatedAt = current.CreatedAt
	updated.History = current.History
	if amountChanged {
		updated, err = s.store.UpdateIncomeAmount(ctx, in.UserID, in.ID, in.Amount, note)
		if err != nil {
			return core.Income{}, fmt.Errorf("update income amount: %w", err)
		}
	}

	s.logger.LogRecordWritten(ctx, log.OpUpdate, in.UserID, core.ActivityIncome, in.ID, updated.Amount, string(updated.Currency))
	s.activity.Record(ctx, in.UserID, core.ActivityIncome, core.ActionEdit, "Updated income: "+updated.Title)
	return updated, nil
}

// DeleteIncome removes an income and its history.
func (s *FinanceService) DeleteIncome(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	current, err := s.store.GetIncome(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("load income: %w", err)
	}
	if err := s.store.DeleteIncome(ctx, userID, id); err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	s.activity.Record(ctx, userID, core.ActivityIncome, core.ActionDelete, "Deleted income: "+current.Title)
	return nil
}

// CreateExpense validates and stores an expense.
func (s *FinanceService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.logger.LogRecordWritten(ctx, log.OpCreate, created.UserID, core.ActivityExpense, created.ID, created.Amount, string(created.Currency))
	s.activity.Record(ctx, created.UserID, core.ActivityExpense, core.ActionCreate, "Created expense: "+created.Title)
	return created, nil
}

// UpdateExpense validates and replaces an expense.
func (s *FinanceService) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	current, err := s.store.GetExpense(ctx, e.UserID, e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("load expense: %w", err)
	}
	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	e.CreatedAt = current.CreatedAt
	s.logger.LogRecordWritten(ctx, log.OpUpdate, e.UserID, core.ActivityExpense, e.ID, e.Amount, string(e.Currency))
	s.activity.Record(ctx, e.UserID, core.ActivityExpense, core.ActionEdit, "Updated expense: "+e.Title)
	return e, nil
}

// DeleteExpense removes an expense.
func (s *FinanceService) DeleteExpense(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	current, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("load expense: %w", err)
	}
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.activity.Record(ctx, userID, core.ActivityExpense, core.ActionDelete, "Deleted expense: "+current.Title)
	return nil
}

// CreateDebt validates and stores a debt with its initial history row.
func (s *FinanceService) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	if d.DueDate != nil && strings.TrimSpace(*d.DueDate) == "" {
		d.DueDate = nil
	}
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	created, err := s.store.CreateDebt(ctx, d)
	if err != nil {
		return core.Debt{}, fmt.Errorf("save debt: %w", err)
	}
	s.logger.LogRecordWritten(ctx, log.OpCreate, created.UserID, core.ActivityDebt, created.ID, created.Amount, string(created.Currency))
	s.activity.Record(ctx, created.UserID, core.ActivityDebt, core.ActionCreate, "Created debt: "+created.Title)
	return created, nil
}

// PayDebt reduces a debt by payment. Paying the full amount marks it paid.
func (s *FinanceService) PayDebt(ctx context.Context, userID, id string, payment float64) (core.Debt, error) {
	if err := requireUser(userID); err != nil {
		return core.Debt{}, err
	}
	current, err := s.store.GetDebt(ctx, userID, id)
	if err != nil {
		return core.Debt{}, fmt.Errorf("load debt: %w", err)
	}
	remaining, status, err := core.ApplyDebtPayment(current, payment)
	if err != nil {
		return core.Debt{}, err
	}
	note := "Payment of " + core.Format(payment, current.Currency, current.Currency, 0)
	updated, err := s.store.UpdateDebtAmount(ctx, userID, id, remaining, status, note)
	if err != nil {
		return core.Debt{}, fmt.Errorf("record payment: %w", err)
	}
	s.logger.LogRecordWritten(ctx, log.OpPayment, userID, core.ActivityDebt, id, payment, string(current.Currency))
	s.activity.Record(ctx, userID, core.ActivityDebt, core.ActionPayment, "Made payment on: "+updated.Title)
	return updated, nil
}

// UpdateDebtAmount sets a new remaining amount. A note mentioning a payment
// is logged as a payment; a zero amount marks the debt paid.
func (s *FinanceService) UpdateDebtAmount(ctx context.Context, userID, id string, amount float64, note string) (core.Debt, error) {
	if err := requireUser(userID); err != nil {
		return core.Debt{}, err
	}
	if amount < 0 {
		return core.Debt{}, core.ErrInvalidAmount
	}
	current, err := s.store.GetDebt(ctx, userID, id)
	if err != nil {
		return core.Debt{}, fmt.Errorf("load debt: %w", err)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		note = "Amount updated"
	}
	status := core.DebtPending
	if amount == 0 {
		status = core.DebtPaid
	}
	updated, err := s.store.UpdateDebtAmount(ctx, userID, id, amount, status, note)
	if err != nil {
		return core.Debt{}, fmt.Errorf("update debt amount: %w", err)
	}

	action, desc := core.ActionEdit, "Updated debt: "+current.Title
	if core.IsPaymentNote(note) {
		action, desc = core.ActionPayment, "Made payment on: "+current.Title
	}
	s.logger.LogRecordWritten(ctx, log.OpUpdate, userID, core.ActivityDebt, id, amount, string(current.Currency))
	s.activity.Record(ctx, userID, core.ActivityDebt, action, desc)
	return updated, nil
}

// UpdateDebt replaces a debt's fields. A changed amount is logged in the
// history with note, defaulting to "Amount updated"; zero marks the debt
// paid. A note mentioning a payment records a payment activity.
func (s *FinanceService) UpdateDebt(ctx context.Context, d core.Debt, note string) (core.Debt, error) {
	if d.DueDate != nil && strings.TrimSpace(*d.DueDate) == "" {
		d.DueDate = nil
	}
	if err := d.ValidateEdit(); err != nil {
		return core.Debt{}, err
	}
	if d.Amount == 0 {
		d.Status = core.DebtPaid
	}
	current, err := s.store.GetDebt(ctx, d.UserID, d.ID)
	if err != nil {
		return core.Debt{}, fmt.Errorf("load debt: %w", err)
	}
	if err := s.store.UpdateDebt(ctx, d); err != nil {
		return core.Debt{}, fmt.Errorf("update debt: %w", err)
	}

	updated := d
	updated.Amount = current.Amount
	updated.CreatedAt = current.CreatedAt
	updated.History = current.History
	amountChanged := d.Amount != current.Amount
	note = strings.TrimSpace(note)
	if note == "" {
		note = "Amount updated"
	}
	if amountChanged {
		updated, err = s.store.UpdateDebtAmount(ctx, d.UserID, d.ID, d.Amount, d.Status, note)
		if err != nil {
			return core.Debt{}, fmt.Errorf("update debt amount: %w", err)
		}
	}

	action, desc := core.ActionEdit, "Updated debt: "+updated.Title
	if amountChanged && core.IsPaymentNote(note) {
		action, desc = core.ActionPayment, "Made payment on: "+updated.Title
	}
	s.logger.LogRecordWritten(ctx, log.OpUpdate, d.UserID, core.ActivityDebt, d.ID, updated.Amount, string(updated.Currency))
	s.activity.Record(ctx, d.UserID, core.ActivityDebt, action, desc)
	return updated, nil
}

// DeleteDebt removes a debt and its history.
func (s *FinanceService) DeleteDebt(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	current, err := s.store.GetDebt(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("load debt: %w", err)
	}
	if err := s.store.DeleteDebt(ctx, userID, id); err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	s.activity.Record(ctx, userID, core.ActivityDebt, core.ActionDelete, "Deleted debt: "+current.Title)
	return nil
}

// CreateAsset validates and stores an asset.
func (s *FinanceService) CreateAsset(ctx context.Context, a core.Asset) (core.Asset, error) {
	if err := a.Validate(); err != nil {
		return core.Asset{}, err
	}
	created, err := s.store.CreateAsset(ctx, a)
	if err != nil {
		return core.Asset{}, fmt.Errorf("save asset: %w", err)
	}
	s.logger.LogRecordWritten(ctx, log.OpCreate, created.UserID, core.ActivityAsset, created.ID, created.Value(), string(created.Currency))
	s.activity.Record(ctx, created.UserID, core.ActivityAsset, core.ActionCreate,
		fmt.Sprintf("Created new asset: %s (%g %s)", created.Type, created.Quantity, created.Unit))
	return created, nil
}

// UpdateAsset validates and replaces an asset.
func (s *FinanceService) UpdateAsset(ctx context.Context, a core.Asset) (core.Asset, error) {
	if err := a.Validate(); err != nil {
		return core.Asset{}, err
	}
	current, err := s.store.GetAsset(ctx, a.UserID, a.ID)
	if err != nil {
		return core.Asset{}, fmt.Errorf("load asset: %w", err)
	}
	if err := s.store.UpdateAsset(ctx, a); err != nil {
		return core.Asset{}, fmt.Errorf("update asset: %w", err)
	}
	a.CreatedAt = current.CreatedAt
	s.logger.LogRecordWritten(ctx, log.OpUpdate, a.UserID, core.ActivityAsset, a.ID, a.Value(), string(a.Currency))
	s.activity.Record(ctx, a.UserID, core.ActivityAsset, core.ActionEdit, "Updated asset: "+a.Type)
	return a, nil
}

// DeleteAsset removes an asset.
func (s *FinanceService) DeleteAsset(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	current, err := s.store.GetAsset(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}
	if err := s.store.DeleteAsset(ctx, userID, id); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	s.activity.Record(ctx, userID, core.ActivityAsset, core.ActionDelete, "Deleted asset: "+current.Type)
	return nil
}
