package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

const debtColumns = `id, user_id, title, creditor, amount, currency, due_date, status, type, created_at`

func scanDebt(s rowScanner) (core.Debt, error) {
	var (
		d         core.Debt
		dueDate   sql.NullString
		createdAt string
	)
	if err := s.Scan(&d.ID, &d.UserID, &d.Title, &d.Creditor, &d.Amount, &d.Currency, &dueDate, &d.Status, &d.Type, &createdAt); err != nil {
		return core.Debt{}, err
	}
	if dueDate.Valid && dueDate.String != "" {
		due := dueDate.String
		d.DueDate = &due
	}
	d.CreatedAt = parseTimestamp(createdAt)
	return d, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateDebt stores a new debt together with its initial history row.
func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	d.ID = newID()
	createdAt := r.timestamp()
	d.CreatedAt = parseTimestamp(createdAt)

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO debts (`+debtColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.UserID, d.Title, d.Creditor, d.Amount, d.Currency, nullableString(d.DueDate), d.Status, d.Type, createdAt)
		if err != nil {
			return fmt.Errorf("insert debt: %w", err)
		}
		e, err := r.insertHistory(ctx, tx, debtHistoryTable, d.ID, d.UserID, d.Amount, initialAmountNote)
		if err != nil {
			return err
		}
		d.History = []core.AmountHistoryEntry{e}
		return nil
	})
	if err != nil {
		return core.Debt{}, err
	}

	slog.InfoContext(ctx, "Debt saved to SQLite", "id", d.ID, "user_id", d.UserID, "amount", d.Amount, "currency", d.Currency)
	return d, nil
}

// ListDebts returns the user's debts with history, earliest due date first and
// debts without a due date last.
func (r *SQLiteRepository) ListDebts(ctx context.Context, userID string) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE user_id = ?
		 ORDER BY due_date IS NULL, due_date ASC, created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	debts := make([]core.Debt, 0)
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debts: %w", err)
	}

	history, err := listHistory(ctx, r.db, debtHistoryTable, userID, "")
	if err != nil {
		return nil, err
	}
	for i := range debts {
		debts[i].History = nonNilHistory(history[debts[i].ID])
	}
	return debts, nil
}

// GetDebt returns one debt with its history.
func (r *SQLiteRepository) GetDebt(ctx context.Context, userID, id string) (core.Debt, error) {
	return r.getDebt(ctx, r.db, userID, id)
}

func (r *SQLiteRepository) getDebt(ctx context.Context, q queryRower, userID, id string) (core.Debt, error) {
	d, err := scanDebt(q.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debt{}, ErrNotFound
	}
	if err != nil {
		return core.Debt{}, fmt.Errorf("get debt: %w", err)
	}
	history, err := listHistory(ctx, q, debtHistoryTable, userID, id)
	if err != nil {
		return core.Debt{}, err
	}
	d.History = nonNilHistory(history[id])
	return d, nil
}

// UpdateDebt replaces every field of a debt except the amount, which is
// changed through UpdateDebtAmount so the history stays complete.
func (r *SQLiteRepository) UpdateDebt(ctx context.Context, d core.Debt) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET title = ?, creditor = ?, currency = ?, due_date = ?, status = ?, type = ? WHERE user_id = ? AND id = ?`,
		d.Title, d.Creditor, d.Currency, nullableString(d.DueDate), d.Status, d.Type, d.UserID, d.ID)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	return affectedOrNotFound(res)
}

// UpdateDebtAmount sets the remaining amount and status and logs the change.
func (r *SQLiteRepository) UpdateDebtAmount(ctx context.Context, userID, id string, amount float64, status core.DebtStatus, note string) (core.Debt, error) {
	var updated core.Debt
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.getDebt(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE debts SET amount = ?, status = ? WHERE user_id = ? AND id = ?`, amount, status, userID, id); err != nil {
			return fmt.Errorf("update debt amount: %w", err)
		}
		e, err := r.insertHistory(ctx, tx, debtHistoryTable, id, userID, amount, note)
		if err != nil {
			return err
		}
		current.History = append(current.History, e)
		current.Amount = amount
		current.Status = status
		updated = current
		return nil
	})
	if err != nil {
		return core.Debt{}, err
	}
	return updated, nil
}

// DeleteDebt removes a debt and its history.
func (r *SQLiteRepository) DeleteDebt(ctx context.Context, userID, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteHistory(ctx, tx, debtHistoryTable, userID, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM debts WHERE user_id = ? AND id = ?`, userID, id)
		if err != nil {
			return fmt.Errorf("delete debt: %w", err)
		}
		return affectedOrNotFound(res)
	})
}
