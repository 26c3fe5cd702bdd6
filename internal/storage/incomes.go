package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

const incomeColumns = `id, user_id, title, amount, currency, category, status, date, created_at`

func scanIncome(s rowScanner) (core.Income, error) {
	var (
		in        core.Income
		createdAt string
	)
	if err := s.Scan(&in.ID, &in.UserID, &in.Title, &in.Amount, &in.Currency, &in.Category, &in.Status, &in.Date, &createdAt); err != nil {
		return core.Income{}, err
	}
	in.CreatedAt = parseTimestamp(createdAt)
	return in, nil
}

// CreateIncome stores a new income. Expected incomes get an initial history row.
func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	in.ID = newID()
	createdAt := r.timestamp()
	in.CreatedAt = parseTimestamp(createdAt)
	in.History = []core.AmountHistoryEntry{}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO incomes (`+incomeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.UserID, in.Title, in.Amount, in.Currency, in.Category, in.Status, in.Date, createdAt)
		if err != nil {
			return fmt.Errorf("insert income: %w", err)
		}
		if in.Status == core.IncomeExpected {
			e, err := r.insertHistory(ctx, tx, incomeHistoryTable, in.ID, in.UserID, in.Amount, initialAmountNote)
			if err != nil {
				return err
			}
			in.History = append(in.History, e)
		}
		return nil
	})
	if err != nil {
		return core.Income{}, err
	}

	slog.InfoContext(ctx, "Income saved to SQLite", "id", in.ID, "user_id", in.UserID, "amount", in.Amount, "currency", in.Currency)
	return in, nil
}

// ListIncomes returns the user's incomes with their history, newest date first.
func (r *SQLiteRepository) ListIncomes(ctx context.Context, userID string) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+incomeColumns+` FROM incomes WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	incomes := make([]core.Income, 0)
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		incomes = append(incomes, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incomes: %w", err)
	}

	history, err := listHistory(ctx, r.db, incomeHistoryTable, userID, "")
	if err != nil {
		return nil, err
	}
	for i := range incomes {
		incomes[i].History = nonNilHistory(history[incomes[i].ID])
	}
	return incomes, nil
}

// GetIncome returns one income with its history.
func (r *SQLiteRepository) GetIncome(ctx context.Context, userID, id string) (core.Income, error) {
	return r.getIncome(ctx, r.db, userID, id)
}

type queryRower interface {
	querier
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) getIncome(ctx context.Context, q queryRower, userID, id string) (core.Income, error) {
	in, err := scanIncome(q.QueryRowContext(ctx,
		`SELECT `+incomeColumns+` FROM incomes WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Income{}, ErrNotFound
	}
	if err != nil {
		return core.Income{}, fmt.Errorf("get income: %w", err)
	}
	history, err := listHistory(ctx, q, incomeHistoryTable, userID, id)
	if err != nil {
		return core.Income{}, err
	}
	in.History = nonNilHistory(history[id])
	return in, nil
}

// UpdateIncome replaces the editable fields of an income. The amount is
// changed through UpdateIncomeAmount.
func (r *SQLiteRepository) UpdateIncome(ctx context.Context, in core.Income) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE incomes SET title = ?, currency = ?, category = ?, status = ?, date = ? WHERE user_id = ? AND id = ?`,
		in.Title, in.Currency, in.Category, in.Status, in.Date, in.UserID, in.ID)
	if err != nil {
		return fmt.Errorf("update income: %w", err)
	}
	return affectedOrNotFound(res)
}

// UpdateIncomeAmount sets a new amount. Expected incomes log the change with
// note in their history; received incomes are updated in place.
func (r *SQLiteRepository) UpdateIncomeAmount(ctx context.Context, userID, id string, amount float64, note string) (core.Income, error) {
	var updated core.Income
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.getIncome(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE incomes SET amount = ? WHERE user_id = ? AND id = ?`, amount, userID, id); err != nil {
			return fmt.Errorf("update income amount: %w", err)
		}
		if current.Status == core.IncomeExpected {
			e, err := r.insertHistory(ctx, tx, incomeHistoryTable, id, userID, amount, note)
			if err != nil {
				return err
			}
			current.History = append(current.History, e)
		}
		current.Amount = amount
		updated = current
		return nil
	})
	if err != nil {
		return core.Income{}, err
	}
	return updated, nil
}

// DeleteIncome removes an income and its history.
func (r *SQLiteRepository) DeleteIncome(ctx context.Context, userID, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteHistory(ctx, tx, incomeHistoryTable, userID, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM incomes WHERE user_id = ? AND id = ?`, userID, id)
		if err != nil {
			return fmt.Errorf("delete income: %w", err)
		}
		return affectedOrNotFound(res)
	})
}
