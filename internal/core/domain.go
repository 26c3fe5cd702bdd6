package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	IncomeExpected IncomeStatus = "expected"
	IncomeReceived IncomeStatus = "received"

	ExpensePaid    ExpenseStatus = "paid"
	ExpensePending ExpenseStatus = "pending"

	ExpenseFixed    ExpenseType = "fixed"
	ExpenseVariable ExpenseType = "variable"

	DebtPending DebtStatus = "pending"
	DebtPaid    DebtStatus = "paid"

	DebtShortTerm DebtType = "short"
	DebtLongTerm  DebtType = "long"
)

// Activity types and actions recorded in the recent activity feed.
const (
	ActivityIncome  = "income"
	ActivityExpense = "expense"
	ActivityDebt    = "debt"
	ActivityAsset   = "asset"

	ActionCreate  = "create"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionPayment = "payment"
)

type (
	IncomeStatus  string
	ExpenseStatus string
	ExpenseType   string
	DebtStatus    string
	DebtType      string

	Income struct {
		ID        string               `json:"id"`
		UserID    string               `json:"user_id" validate:"required"`
		Title     string               `json:"title" validate:"min=2,max=200"`
		Amount    float64              `json:"amount" validate:"gt=0"`
		Currency  Currency             `json:"currency" validate:"oneof=USD TRY"`
		Category  string               `json:"category" validate:"required,max=100"`
		Status    IncomeStatus         `json:"status" validate:"oneof=expected received"`
		Date      string               `json:"date" validate:"isodate"`
		CreatedAt time.Time            `json:"created_at"`
		History   []AmountHistoryEntry `json:"income_amount_history" validate:"-"`
	}

	Expense struct {
		ID        string        `json:"id"`
		UserID    string        `json:"user_id" validate:"required"`
		Title     string        `json:"title" validate:"min=2,max=200"`
		Category  string        `json:"category" validate:"required,max=100"`
		Amount    float64       `json:"amount" validate:"gt=0"`
		Currency  Currency      `json:"currency" validate:"oneof=USD TRY"`
		Date      string        `json:"date" validate:"isodate"`
		Status    ExpenseStatus `json:"status" validate:"oneof=paid pending"`
		Type      ExpenseType   `json:"type" validate:"oneof=fixed variable"`
		CreatedAt time.Time     `json:"created_at"`
	}

	Debt struct {
		ID        string               `json:"id"`
		UserID    string               `json:"user_id" validate:"required"`
		Title     string               `json:"title" validate:"min=2,max=200"`
		Creditor  string               `json:"creditor" validate:"required,max=200"`
		Amount    float64              `json:"amount" validate:"gt=0"`
		Currency  Currency             `json:"currency" validate:"oneof=USD TRY"`
		DueDate   *string              `json:"due_date" validate:"omitempty,isodate"`
		Status    DebtStatus           `json:"status" validate:"oneof=pending paid"`
		Type      DebtType             `json:"type" validate:"oneof=short long"`
		CreatedAt time.Time            `json:"created_at"`
		History   []AmountHistoryEntry `json:"debt_amount_history" validate:"-"`
	}

	Asset struct {
		ID           string    `json:"id"`
		UserID       string    `json:"user_id" validate:"required"`
		Type         string    `json:"type" validate:"required,max=100"`
		Quantity     float64   `json:"quantity" validate:"gt=0"`
		Unit         string    `json:"unit" validate:"required,max=50"`
		PricePerUnit float64   `json:"price_per_unit" validate:"gte=0"`
		Currency     Currency  `json:"currency" validate:"oneof=USD TRY"`
		AutoUpdate   bool      `json:"auto_update"`
		CreatedAt    time.Time `json:"created_at"`
	}

	Activity struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		Type        string    `json:"type"`
		Action      string    `json:"action"`
		Description string    `json:"description"`
		Timestamp   time.Time `json:"timestamp"`
	}

	// Settings are the per-user preferences that survive sessions.
	Settings struct {
		UserID          string        `json:"user_id"`
		DefaultCurrency Currency      `json:"default_currency"`
		SelectedMonth   MonthSelector `json:"selected_month"`
	}
)

var (
	ErrMissingUser      = errors.New("missing user")
	ErrInvalidTitle     = errors.New("title must be between 2 and 200 characters")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidType      = errors.New("invalid type")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyCreditor    = errors.New("empty creditor")
	ErrEmptyUnit        = errors.New("empty unit")
	ErrNoteRequired     = errors.New("a note is required when changing the amount of an expected income")
	ErrPaymentTooLarge  = errors.New("payment cannot exceed the remaining debt amount")
	ErrInvalidSelection = errors.New("invalid month selection")
)

var validate *validator.Validate

// fieldErrors maps struct fields to the sentinel returned when they fail validation.
var fieldErrors = map[string]error{
	"UserID":       ErrMissingUser,
	"Title":        ErrInvalidTitle,
	"Amount":       ErrInvalidAmount,
	"Quantity":     ErrInvalidAmount,
	"PricePerUnit": ErrInvalidAmount,
	"Currency":     ErrInvalidCurrency,
	"Status":       ErrInvalidStatus,
	"Type":         ErrInvalidType,
	"Date":         ErrInvalidDate,
	"DueDate":      ErrInvalidDate,
	"Category":     ErrEmptyCategory,
	"Creditor":     ErrEmptyCreditor,
	"Unit":         ErrEmptyUnit,
}

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("isodate", validateISODate)
}

func validateISODate(fl validator.FieldLevel) bool {
	_, ok := ParseRecordDate(fl.Field().String(), time.UTC)
	return ok
}

func checkStruct(v any) error {
	return firstFieldError(validate.Struct(v))
}

func firstFieldError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if sentinel, ok := fieldErrors[fe.Field()]; ok {
		return fmt.Errorf("%w (%s failed %q)", sentinel, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("invalid %s: failed %q", strings.ToLower(fe.Field()), fe.Tag())
}

func (i Income) Validate() error { return checkStruct(i) }

func (e Expense) Validate() error { return checkStruct(e) }

func (d Debt) Validate() error { return checkStruct(d) }

// ValidateEdit checks an edited debt. Unlike a new debt, an edit may bring
// the remaining amount down to zero.
func (d Debt) ValidateEdit() error {
	if d.Amount < 0 {
		return ErrInvalidAmount
	}
	return firstFieldError(validate.StructExcept(d, "Amount"))
}

func (a Asset) Validate() error { return checkStruct(a) }

// Value is the asset's worth in its own currency.
func (a Asset) Value() float64 {
	return a.Quantity * a.PricePerUnit
}

// DefaultSettings are used until a user saves preferences.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:          userID,
		DefaultCurrency: USD,
		SelectedMonth:   AllMonths,
	}
}

// Validate checks the currency and month selection.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrMissingUser
	}
	if !s.DefaultCurrency.Valid() {
		return ErrInvalidCurrency
	}
	if _, err := ParseMonthSelector(string(s.SelectedMonth)); err != nil {
		return err
	}
	return nil
}

// ValidateIncomeAmountChange applies the edit rule of expected incomes: a changed
// amount must carry a note so the history stays readable.
func ValidateIncomeAmountChange(current Income, newAmount float64, note string) error {
	if newAmount <= 0 {
		return ErrInvalidAmount
	}
	if current.Status == IncomeExpected && newAmount != current.Amount && strings.TrimSpace(note) == "" {
		return ErrNoteRequired
	}
	return nil
}

// ApplyDebtPayment returns the remaining amount and status after a payment.
func ApplyDebtPayment(current Debt, payment float64) (float64, DebtStatus, error) {
	if payment <= 0 {
		return current.Amount, current.Status, ErrInvalidAmount
	}
	remaining := current.Amount - payment
	if remaining < 0 {
		return current.Amount, current.Status, ErrPaymentTooLarge
	}
	if remaining == 0 {
		return 0, DebtPaid, nil
	}
	return remaining, DebtPending, nil
}

// IsPaymentNote reports whether a debt amount change note describes a payment.
func IsPaymentNote(note string) bool {
	return strings.Contains(strings.ToLower(note), "payment")
}

// DebtDueDate is the DateFunc used to filter debts by month.
func DebtDueDate(d Debt) string {
	if d.DueDate == nil {
		return ""
	}
	return *d.DueDate
}

// IncomeDate is the DateFunc used to filter incomes by month.
func IncomeDate(i Income) string { return i.Date }

// ExpenseDate is the DateFunc used to filter expenses by month.
func ExpenseDate(e Expense) string { return e.Date }
