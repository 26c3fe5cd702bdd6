// Package seed imports finance records from a YAML fixture through the
// finance service, so imported rows get the same validation, history and
// activity as records created over the API.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type Fixture struct {
	Incomes  []IncomeFixture  `yaml:"incomes,omitempty"`
	Expenses []ExpenseFixture `yaml:"expenses,omitempty"`
	Debts    []DebtFixture    `yaml:"debts,omitempty"`
	Assets   []AssetFixture   `yaml:"assets,omitempty"`
}

// AmountChange is a later edit of an income or debt amount.
type AmountChange struct {
	Amount float64 `yaml:"amount"`
	Note   string  `yaml:"note"`
}

type IncomeFixture struct {
	Title    string         `yaml:"title"`
	Amount   float64        `yaml:"amount"`
	Currency string         `yaml:"currency,omitempty"`
	Category string         `yaml:"category"`
	Status   string         `yaml:"status,omitempty"`
	Date     string         `yaml:"date"`
	Changes  []AmountChange `yaml:"changes,omitempty"`
}

type ExpenseFixture struct {
	Title    string  `yaml:"title"`
	Amount   float64 `yaml:"amount"`
	Currency string  `yaml:"currency,omitempty"`
	Category string  `yaml:"category"`
	Status   string  `yaml:"status,omitempty"`
	Type     string  `yaml:"type,omitempty"`
	Date     string  `yaml:"date"`
}

type DebtFixture struct {
	Title    string         `yaml:"title"`
	Creditor string         `yaml:"creditor"`
	Amount   float64        `yaml:"amount"`
	Currency string         `yaml:"currency,omitempty"`
	DueDate  string         `yaml:"due_date,omitempty"`
	Type     string         `yaml:"type,omitempty"`
	Payments []float64      `yaml:"payments,omitempty"`
	Changes  []AmountChange `yaml:"changes,omitempty"`
}

type AssetFixture struct {
	Type         string  `yaml:"type"`
	Quantity     float64 `yaml:"quantity"`
	Unit         string  `yaml:"unit"`
	PricePerUnit float64 `yaml:"price_per_unit"`
	Currency     string  `yaml:"currency,omitempty"`
	AutoUpdate   bool    `yaml:"auto_update,omitempty"`
}

// Summary counts the records an Apply created.
type Summary struct {
	Incomes  int
	Expenses int
	Debts    int
	Assets   int
}

// Decode reads a fixture. Unknown keys are rejected.
func Decode(r io.Reader) (*Fixture, error) {
	var f Fixture
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &f, nil
}

// LoadFile decodes the fixture at path.
func LoadFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Apply creates every record of the fixture for userID. It stops at the
// first failure; records created before it are kept.
func (f *Fixture) Apply(ctx context.Context, finance *services.FinanceService, userID string) (Summary, error) {
	var sum Summary

	for i, in := range f.Incomes {
		created, err := finance.CreateIncome(ctx, core.Income{
			UserID:   userID,
			Title:    in.Title,
			Amount:   in.Amount,
			Currency: currencyOr(in.Currency),
			Category: in.Category,
			Status:   core.IncomeStatus(orDefault(in.Status, string(core.IncomeReceived))),
			Date:     in.Date,
		})
		if err != nil {
			return sum, fmt.Errorf("income %d (%q): %w", i, in.Title, err)
		}
		for _, c := range in.Changes {
			if _, err := finance.UpdateIncomeAmount(ctx, userID, created.ID, c.Amount, c.Note); err != nil {
				return sum, fmt.Errorf("income %d (%q) change: %w", i, in.Title, err)
			}
		}
		sum.Incomes++
	}

	for i, e := range f.Expenses {
		_, err := finance.CreateExpense(ctx, core.Expense{
			UserID:   userID,
			Title:    e.Title,
			Amount:   e.Amount,
			Currency: currencyOr(e.Currency),
			Category: e.Category,
			Status:   core.ExpenseStatus(orDefault(e.Status, string(core.ExpensePaid))),
			Type:     core.ExpenseType(orDefault(e.Type, string(core.ExpenseVariable))),
			Date:     e.Date,
		})
		if err != nil {
			return sum, fmt.Errorf("expense %d (%q): %w", i, e.Title, err)
		}
		sum.Expenses++
	}

	for i, d := range f.Debts {
		debt := core.Debt{
			UserID:   userID,
			Title:    d.Title,
			Creditor: d.Creditor,
			Amount:   d.Amount,
			Currency: currencyOr(d.Currency),
			Status:   core.DebtPending,
			Type:     core.DebtType(orDefault(d.Type, string(core.DebtShortTerm))),
		}
		if d.DueDate != "" {
			due := d.DueDate
			debt.DueDate = &due
		}
		created, err := finance.CreateDebt(ctx, debt)
		if err != nil {
			return sum, fmt.Errorf("debt %d (%q): %w", i, d.Title, err)
		}
		for _, p := range d.Payments {
			if _, err := finance.PayDebt(ctx, userID, created.ID, p); err != nil {
				return sum, fmt.Errorf("debt %d (%q) payment: %w", i, d.Title, err)
			}
		}
		for _, c := range d.Changes {
			if _, err := finance.UpdateDebtAmount(ctx, userID, created.ID, c.Amount, c.Note); err != nil {
				return sum, fmt.Errorf("debt %d (%q) change: %w", i, d.Title, err)
			}
		}
		sum.Debts++
	}

	for i, a := range f.Assets {
		_, err := finance.CreateAsset(ctx, core.Asset{
			UserID:       userID,
			Type:         a.Type,
			Quantity:     a.Quantity,
			Unit:         a.Unit,
			PricePerUnit: a.PricePerUnit,
			Currency:     currencyOr(a.Currency),
			AutoUpdate:   a.AutoUpdate,
		})
		if err != nil {
			return sum, fmt.Errorf("asset %d (%q): %w", i, a.Type, err)
		}
		sum.Assets++
	}

	return sum, nil
}

func currencyOr(raw string) core.Currency {
	return core.Currency(orDefault(raw, string(core.USD)))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
