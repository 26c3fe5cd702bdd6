package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

const assetColumns = `id, user_id, type, quantity, unit, price_per_unit, currency, auto_update, created_at`

func scanAsset(s rowScanner) (core.Asset, error) {
	var (
		a         core.Asset
		createdAt string
	)
	if err := s.Scan(&a.ID, &a.UserID, &a.Type, &a.Quantity, &a.Unit, &a.PricePerUnit, &a.Currency, &a.AutoUpdate, &createdAt); err != nil {
		return core.Asset{}, err
	}
	a.CreatedAt = parseTimestamp(createdAt)
	return a, nil
}

// CreateAsset stores a new asset.
func (r *SQLiteRepository) CreateAsset(ctx context.Context, a core.Asset) (core.Asset, error) {
	a.ID = newID()
	createdAt := r.timestamp()
	a.CreatedAt = parseTimestamp(createdAt)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Type, a.Quantity, a.Unit, a.PricePerUnit, a.Currency, a.AutoUpdate, createdAt)
	if err != nil {
		return core.Asset{}, fmt.Errorf("create asset: %w", err)
	}
	return a, nil
}

// ListAssets returns the user's assets in creation order.
func (r *SQLiteRepository) ListAssets(ctx context.Context, userID string) ([]core.Asset, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	assets := make([]core.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

// GetAsset returns one asset.
func (r *SQLiteRepository) GetAsset(ctx context.Context, userID, id string) (core.Asset, error) {
	a, err := scanAsset(r.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Asset{}, ErrNotFound
	}
	if err != nil {
		return core.Asset{}, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// UpdateAsset replaces the editable fields of an asset.
func (r *SQLiteRepository) UpdateAsset(ctx context.Context, a core.Asset) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE assets SET type = ?, quantity = ?, unit = ?, price_per_unit = ?, currency = ?, auto_update = ?
		 WHERE user_id = ? AND id = ?`,
		a.Type, a.Quantity, a.Unit, a.PricePerUnit, a.Currency, a.AutoUpdate, a.UserID, a.ID)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return affectedOrNotFound(res)
}

// DeleteAsset removes an asset.
func (r *SQLiteRepository) DeleteAsset(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return affectedOrNotFound(res)
}
