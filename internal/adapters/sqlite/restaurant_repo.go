package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/halalchain/halalmap/internal/core/domain"
)

const restaurantColumns = `
	id, name, address, province, cuisine, phone, open_hours, description,
	latitude, longitude, certification_id, issuing_authority,
	certified_date, expiry_date, verified, tx_hash, block_number,
	rating, review_count, qr_scan_count, owner_id, created_at, updated_at`

const upsertRestaurantSQL = `
	INSERT INTO restaurants (` + restaurantColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE
	SET name = excluded.name, address = excluded.address, province = excluded.province,
	    cuisine = excluded.cuisine, phone = excluded.phone, open_hours = excluded.open_hours,
	    description = excluded.description, latitude = excluded.latitude, longitude = excluded.longitude,
	    certification_id = excluded.certification_id, issuing_authority = excluded.issuing_authority,
	    certified_date = excluded.certified_date, expiry_date = excluded.expiry_date,
	    verified = excluded.verified, tx_hash = excluded.tx_hash, block_number = excluded.block_number,
	    rating = excluded.rating, review_count = excluded.review_count, owner_id = excluded.owner_id,
	    updated_at = excluded.updated_at`

// RestaurantRepo implements ports.RestaurantRepository on SQLite.
type RestaurantRepo struct {
	db *DB
}

// NewRestaurantRepo creates a new RestaurantRepo.
func NewRestaurantRepo(db *DB) *RestaurantRepo {
	return &RestaurantRepo{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func upsert(ctx context.Context, ex execer, r *domain.Restaurant) error {
	_, err := ex.ExecContext(ctx, upsertRestaurantSQL,
		r.ID, r.Name, r.Address, r.Province, r.Cuisine, r.Phone, r.OpenHours, r.Description,
		r.Latitude, r.Longitude, r.CertificationID, r.IssuingAuthority,
		formatTimePtr(r.CertifiedDate), formatTimePtr(r.ExpiryDate), r.Verified, r.TxHash, r.BlockNumber,
		r.Rating, r.ReviewCount, r.QRScanCount, r.OwnerID, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	return err
}

// Upsert inserts or updates a single restaurant.
func (r *RestaurantRepo) Upsert(ctx context.Context, rest *domain.Restaurant) error {
	return upsert(ctx, r.db.SQL, rest)
}

// UpsertBatch inserts many restaurants in one transaction.
func (r *RestaurantRepo) UpsertBatch(ctx context.Context, rs []domain.Restaurant) error {
	return r.db.tx(ctx, func(tx *sql.Tx) error {
		for i := range rs {
			if err := upsert(ctx, tx, &rs[i]); err != nil {
				return fmt.Errorf("upsert %s: %w", rs[i].ID, err)
			}
		}
		return nil
	})
}

// GetByID returns a restaurant by id.
func (r *RestaurantRepo) GetByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	row := r.db.SQL.QueryRowContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = ?`, id)
	rest, err := scanRestaurant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rest, err
}

// List returns a page of restaurants matching f and the total match count.
func (r *RestaurantRepo) List(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error) {
	where, args := filterClause(f)

	var total int
	if err := r.db.SQL.QueryRowContext(ctx, `SELECT COUNT(*) FROM restaurants`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count restaurants: %w", err)
	}

	query := `SELECT ` + restaurantColumns + ` FROM restaurants` + where + ` ORDER BY name, id`
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, f.Offset)
	}

	rs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return rs, total, nil
}

// Update applies a partial update inside a transaction.
func (r *RestaurantRepo) Update(ctx context.Context, id string, u domain.RestaurantUpdate) (*domain.Restaurant, error) {
	var out *domain.Restaurant
	err := r.db.tx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = ?`, id)
		rest, err := scanRestaurant(row)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		u.Apply(rest)
		rest.UpdatedAt = time.Now().UTC()
		if err := upsert(ctx, tx, rest); err != nil {
			return fmt.Errorf("update restaurant: %w", err)
		}
		out = rest
		return nil
	})
	return out, err
}

// Delete removes a restaurant and, by cascade, its scans.
func (r *RestaurantRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.SQL.ExecContext(ctx, `DELETE FROM restaurants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetVerified flips the verification flag.
func (r *RestaurantRepo) SetVerified(ctx context.Context, id string, verified bool) error {
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE restaurants SET verified = ?, updated_at = ? WHERE id = ?`,
		verified, formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ExpiringBefore returns verified restaurants whose certificate expires before t.
func (r *RestaurantRepo) ExpiringBefore(ctx context.Context, t time.Time) ([]domain.Restaurant, error) {
	return r.query(ctx, `
		SELECT `+restaurantColumns+` FROM restaurants
		WHERE verified = 1 AND expiry_date IS NOT NULL AND expiry_date < ?
		ORDER BY expiry_date
	`, formatTime(t))
}

// Stats returns directory-wide totals.
func (r *RestaurantRepo) Stats(ctx context.Context) (*domain.Stats, error) {
	var s domain.Stats
	err := r.db.SQL.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN verified = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN verified = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(qr_scan_count), 0)
		FROM restaurants
	`).Scan(&s.Restaurants, &s.Verified, &s.Pending, &s.Scans)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RestaurantRepo) query(ctx context.Context, query string, args ...any) ([]domain.Restaurant, error) {
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs := []domain.Restaurant{}
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		rs = append(rs, *rest)
	}
	return rs, rows.Err()
}

func scanRestaurant(row rowScanner) (*domain.Restaurant, error) {
	var (
		r                 domain.Restaurant
		certified, expiry sql.NullString
		created, updated  string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Address, &r.Province, &r.Cuisine, &r.Phone, &r.OpenHours, &r.Description,
		&r.Latitude, &r.Longitude, &r.CertificationID, &r.IssuingAuthority,
		&certified, &expiry, &r.Verified, &r.TxHash, &r.BlockNumber,
		&r.Rating, &r.ReviewCount, &r.QRScanCount, &r.OwnerID, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	if r.CertifiedDate, err = parseTimePtr(certified); err != nil {
		return nil, err
	}
	if r.ExpiryDate, err = parseTimePtr(expiry); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &r, nil
}

// filterClause renders the WHERE clause for f with ? placeholders.
func filterClause(f domain.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Province != "" {
		conds = append(conds, "province = ?")
		args = append(args, f.Province)
	}
	if f.Verified != nil {
		conds = append(conds, "verified = ?")
		args = append(args, *f.Verified)
	}
	if f.Search != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		p := "%" + escapeLike(f.Search) + "%"
		conds = append(conds, `(name LIKE ? ESCAPE '\' OR address LIKE ? ESCAPE '\' OR cuisine LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	if b := f.Bounds; b != nil {
		conds = append(conds, "latitude BETWEEN ? AND ?")
		args = append(args, b.MinLat, b.MaxLat)
		if b.MinLng <= b.MaxLng {
			conds = append(conds, "longitude BETWEEN ? AND ?")
		} else {
			conds = append(conds, "(longitude >= ? OR longitude <= ?)")
		}
		args = append(args, b.MinLng, b.MaxLng)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Timestamps are stored as fixed-width UTC RFC 3339 text so they sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
