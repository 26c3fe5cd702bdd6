package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fintrack/internal/core"
)

// historyTable names an amount history table and its parent column.
type historyTable struct {
	name   string
	parent string
}

var (
	incomeHistoryTable = historyTable{name: "income_amount_history", parent: "income_id"}
	debtHistoryTable   = historyTable{name: "debt_amount_history", parent: "debt_id"}
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLiteRepository) insertHistory(ctx context.Context, ex execer, t historyTable, parentID, userID string, amount float64, note string) (core.AmountHistoryEntry, error) {
	e := core.AmountHistoryEntry{
		ID:       newID(),
		ParentID: parentID,
		UserID:   userID,
		Amount:   amount,
		Note:     note,
		LoggedAt: r.timestamp(),
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, %s, user_id, amount, note, logged_at) VALUES (?, ?, ?, ?, ?, ?)`, t.name, t.parent)
	if _, err := ex.ExecContext(ctx, query, e.ID, e.ParentID, e.UserID, e.Amount, e.Note, e.LoggedAt); err != nil {
		return core.AmountHistoryEntry{}, fmt.Errorf("insert %s: %w", t.name, err)
	}
	return e, nil
}

// listHistory returns the user's history rows keyed by parent, in logged order.
// An empty parentID loads every parent.
func listHistory(ctx context.Context, q querier, t historyTable, userID, parentID string) (map[string][]core.AmountHistoryEntry, error) {
	query := fmt.Sprintf(`SELECT id, %s, user_id, amount, note, logged_at FROM %s WHERE user_id = ?`, t.parent, t.name)
	args := []any{userID}
	if parentID != "" {
		query += fmt.Sprintf(" AND %s = ?", t.parent)
		args = append(args, parentID)
	}
	query += " ORDER BY logged_at ASC, rowid ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	out := make(map[string][]core.AmountHistoryEntry)
	for rows.Next() {
		var e core.AmountHistoryEntry
		if err := rows.Scan(&e.ID, &e.ParentID, &e.UserID, &e.Amount, &e.Note, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		out[e.ParentID] = append(out[e.ParentID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return out, nil
}

func deleteHistory(ctx context.Context, ex execer, t historyTable, userID, parentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND %s = ?`, t.name, t.parent)
	if _, err := ex.ExecContext(ctx, query, userID, parentID); err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return nil
}

func nonNilHistory(h []core.AmountHistoryEntry) []core.AmountHistoryEntry {
	if h == nil {
		return []core.AmountHistoryEntry{}
	}
	return h
}
