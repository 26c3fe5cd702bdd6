package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

// GetSettings returns the user's saved preferences, or the defaults when none
// were saved.
func (r *SQLiteRepository) GetSettings(ctx context.Context, userID string) (core.Settings, error) {
	s := core.Settings{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT default_currency, selected_month FROM user_settings WHERE user_id = ?`, userID).
		Scan(&s.DefaultCurrency, &s.SelectedMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultSettings(userID), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// SaveSettings inserts or replaces the user's preferences.
func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.Settings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, default_currency, selected_month, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   default_currency = excluded.default_currency,
		   selected_month = excluded.selected_month,
		   updated_at = excluded.updated_at`,
		s.UserID, s.DefaultCurrency, s.SelectedMonth, r.timestamp())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
