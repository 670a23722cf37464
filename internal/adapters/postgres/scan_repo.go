package postgres

import (
	"context"
	"fmt"

	"github.com/halalchain/halalmap/internal/core/domain"
)

// ScanRepo implements ports.ScanRepository with pgx.
type ScanRepo struct {
	db *DB
}

// NewScanRepo creates a new ScanRepo.
func NewScanRepo(db *DB) *ScanRepo {
	return &ScanRepo{db: db}
}

// Record stores a scan and increments the restaurant's counter atomically.
func (r *ScanRepo) Record(ctx context.Context, s *domain.QRScan) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE restaurants SET qr_scan_count = qr_scan_count + 1 WHERE id = $1`, s.RestaurantID)
	if err != nil {
		return fmt.Errorf("bump scan count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO qr_scans (id, restaurant_id, location, device, scanned_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.RestaurantID, s.Location, s.Device, s.ScannedAt); err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}

	return tx.Commit(ctx)
}

// Recent returns the newest scans for a restaurant.
func (r *ScanRepo) Recent(ctx context.Context, restaurantID string, limit int) ([]domain.QRScan, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, restaurant_id, location, device, scanned_at
		FROM qr_scans
		WHERE restaurant_id = $1
		ORDER BY scanned_at DESC
		LIMIT $2
	`, restaurantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []domain.QRScan
	for rows.Next() {
		var s domain.QRScan
		if err := rows.Scan(&s.ID, &s.RestaurantID, &s.Location, &s.Device, &s.ScannedAt); err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}
