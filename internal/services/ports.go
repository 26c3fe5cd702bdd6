package services

import (
	"context"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// Store is the persistence the finance service needs. storage.SQLiteRepository
// implements it.
type Store interface {
	CreateIncome(ctx context.Context, in core.Income) (core.Income, error)
	ListIncomes(ctx context.Context, userID string) ([]core.Income, error)
	GetIncome(ctx context.Context, userID, id string) (core.Income, error)
	UpdateIncome(ctx context.Context, in core.Income) error
	UpdateIncomeAmount(ctx context.Context, userID, id string, amount float64, note string) (core.Income, error)
	DeleteIncome(ctx context.Context, userID, id string) error

	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)
	GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, userID, id string) error

	CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error)
	ListDebts(ctx context.Context, userID string) ([]core.Debt, error)
	GetDebt(ctx context.Context, userID, id string) (core.Debt, error)
	UpdateDebt(ctx context.Context, d core.Debt) error
	UpdateDebtAmount(ctx context.Context, userID, id string, amount float64, status core.DebtStatus, note string) (core.Debt, error)
	DeleteDebt(ctx context.Context, userID, id string) error

	CreateAsset(ctx context.Context, a core.Asset) (core.Asset, error)
	ListAssets(ctx context.Context, userID string) ([]core.Asset, error)
	GetAsset(ctx context.Context, userID, id string) (core.Asset, error)
	UpdateAsset(ctx context.Context, a core.Asset) error
	DeleteAsset(ctx context.Context, userID, id string) error

	ActivityStore

	GetSettings(ctx context.Context, userID string) (core.Settings, error)
	SaveSettings(ctx context.Context, s core.Settings) error
}

// ActivityStore persists the recent activity feed.
type ActivityStore interface {
	InsertActivity(ctx context.Context, a core.Activity) error
	RecentActivity(ctx context.Context, userID string, limit int) ([]core.Activity, error)
}

// RateSource provides the TRY per USD rate. ok is false when unknown.
type RateSource interface {
	Rate(ctx context.Context) (rate float64, ok bool)
}

// PriceSource quotes live USD prices per unit keyed by lower-case asset
// kind. Kinds without a quote are absent.
type PriceSource interface {
	Prices(ctx context.Context) map[string]float64
}

// ActivityPublisher sends activity events to the broker.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, msg *amqp.ActivityMessage) error
}
