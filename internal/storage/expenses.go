package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

const expenseColumns = `id, user_id, title, category, amount, currency, date, status, type, created_at`

func scanExpense(s rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		createdAt string
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Title, &e.Category, &e.Amount, &e.Currency, &e.Date, &e.Status, &e.Type, &createdAt); err != nil {
		return core.Expense{}, err
	}
	e.CreatedAt = parseTimestamp(createdAt)
	return e, nil
}

// CreateExpense stores a new expense.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = newID()
	createdAt := r.timestamp()
	e.CreatedAt = parseTimestamp(createdAt)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title, e.Category, e.Amount, e.Currency, e.Date, e.Status, e.Type, createdAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite", "id", e.ID, "user_id", e.UserID, "amount", e.Amount, "currency", e.Currency)
	return e, nil
}

// ListExpenses returns the user's expenses, newest date first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// GetExpense returns one expense.
func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// UpdateExpense replaces every editable field of an expense.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET title = ?, category = ?, amount = ?, currency = ?, date = ?, status = ?, type = ?
		 WHERE user_id = ? AND id = ?`,
		e.Title, e.Category, e.Amount, e.Currency, e.Date, e.Status, e.Type, e.UserID, e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return affectedOrNotFound(res)
}

// DeleteExpense removes an expense.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return affectedOrNotFound(res)
}
