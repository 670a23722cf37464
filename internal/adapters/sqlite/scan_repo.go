package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/halalchain/halalmap/internal/core/domain"
)

// ScanRepo implements ports.ScanRepository on SQLite.
type ScanRepo struct {
	db *DB
}

// NewScanRepo creates a new ScanRepo.
func NewScanRepo(db *DB) *ScanRepo {
	return &ScanRepo{db: db}
}

// Record stores a scan and increments the restaurant's counter atomically.
func (r *ScanRepo) Record(ctx context.Context, s *domain.QRScan) error {
	return r.db.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE restaurants SET qr_scan_count = qr_scan_count + 1 WHERE id = ?`, s.RestaurantID)
		if err != nil {
			return fmt.Errorf("bump scan count: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO qr_scans (id, restaurant_id, location, device, scanned_at)
			VALUES (?, ?, ?, ?, ?)
		`, s.ID, s.RestaurantID, s.Location, s.Device, formatTime(s.ScannedAt))
		if err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}
		return nil
	})
}

// Recent returns the newest scans for a restaurant.
func (r *ScanRepo) Recent(ctx context.Context, restaurantID string, limit int) ([]domain.QRScan, error) {
	rows, err := r.db.SQL.QueryContext(ctx, `
		SELECT id, restaurant_id, location, device, scanned_at
		FROM qr_scans
		WHERE restaurant_id = ?
		ORDER BY scanned_at DESC
		LIMIT ?
	`, restaurantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []domain.QRScan
	for rows.Next() {
		var (
			s  domain.QRScan
			at string
		)
		if err := rows.Scan(&s.ID, &s.RestaurantID, &s.Location, &s.Device, &at); err != nil {
			return nil, err
		}
		if s.ScannedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}
