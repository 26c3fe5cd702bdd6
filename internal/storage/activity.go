package storage

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// InsertActivity stores an activity row. A missing ID or timestamp is filled in.
func (r *SQLiteRepository) InsertActivity(ctx context.Context, a core.Activity) error {
	if a.ID == "" {
		a.ID = newID()
	}
	ts := r.timestamp()
	if !a.Timestamp.IsZero() {
		ts = a.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recent_activity (id, user_id, type, action, description, timestamp) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		a.ID, a.UserID, a.Type, a.Action, a.Description, ts)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// RecentActivity returns the user's latest activity rows, newest first.
func (r *SQLiteRepository) RecentActivity(ctx context.Context, userID string, limit int) ([]core.Activity, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, action, description, timestamp FROM recent_activity
		 WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := make([]core.Activity, 0, limit)
	for rows.Next() {
		var (
			a  core.Activity
			ts string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Action, &a.Description, &ts); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Timestamp = parseTimestamp(ts)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}
