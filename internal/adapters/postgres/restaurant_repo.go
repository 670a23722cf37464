package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/halalchain/halalmap/internal/core/domain"
)

const restaurantColumns = `
	id, name, address, province, cuisine, phone, open_hours, description,
	latitude, longitude, certification_id, issuing_authority,
	certified_date, expiry_date, verified, tx_hash, block_number,
	rating, review_count, qr_scan_count, owner_id, created_at, updated_at`

const upsertRestaurantSQL = `
	INSERT INTO restaurants (` + restaurantColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name, address = EXCLUDED.address, province = EXCLUDED.province,
	    cuisine = EXCLUDED.cuisine, phone = EXCLUDED.phone, open_hours = EXCLUDED.open_hours,
	    description = EXCLUDED.description, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
	    certification_id = EXCLUDED.certification_id, issuing_authority = EXCLUDED.issuing_authority,
	    certified_date = EXCLUDED.certified_date, expiry_date = EXCLUDED.expiry_date,
	    verified = EXCLUDED.verified, tx_hash = EXCLUDED.tx_hash, block_number = EXCLUDED.block_number,
	    rating = EXCLUDED.rating, review_count = EXCLUDED.review_count, owner_id = EXCLUDED.owner_id,
	    updated_at = EXCLUDED.updated_at`

// RestaurantRepo implements ports.RestaurantRepository with pgx.
type RestaurantRepo struct {
	db *DB
}

// NewRestaurantRepo creates a new RestaurantRepo.
func NewRestaurantRepo(db *DB) *RestaurantRepo {
	return &RestaurantRepo{db: db}
}

func upsertArgs(r *domain.Restaurant) []any {
	return []any{
		r.ID, r.Name, r.Address, r.Province, r.Cuisine, r.Phone, r.OpenHours, r.Description,
		r.Latitude, r.Longitude, r.CertificationID, r.IssuingAuthority,
		r.CertifiedDate, r.ExpiryDate, r.Verified, r.TxHash, r.BlockNumber,
		r.Rating, r.ReviewCount, r.QRScanCount, r.OwnerID, r.CreatedAt, r.UpdatedAt,
	}
}

// Upsert inserts or updates a single restaurant.
func (r *RestaurantRepo) Upsert(ctx context.Context, rest *domain.Restaurant) error {
	_, err := r.db.Pool.Exec(ctx, upsertRestaurantSQL, upsertArgs(rest)...)
	return err
}

// UpsertBatch inserts many restaurants using pgx.Batch.
func (r *RestaurantRepo) UpsertBatch(ctx context.Context, rs []domain.Restaurant) error {
	batch := &pgx.Batch{}
	for i := range rs {
		batch.Queue(upsertRestaurantSQL, upsertArgs(&rs[i])...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByID returns a restaurant by id.
func (r *RestaurantRepo) GetByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id)
	rest, err := scanRestaurant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rest, nil
}

// List returns a page of restaurants matching f and the total match count.
func (r *RestaurantRepo) List(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error) {
	where, args := filterClause(f)

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM restaurants`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count restaurants: %w", err)
	}

	query := `SELECT ` + restaurantColumns + ` FROM restaurants` + where + ` ORDER BY name, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	rs := []domain.Restaurant{}
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, 0, err
		}
		rs = append(rs, *rest)
	}
	return rs, total, rows.Err()
}

// Update applies a partial update inside a transaction.
func (r *RestaurantRepo) Update(ctx context.Context, id string, u domain.RestaurantUpdate) (*domain.Restaurant, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1 FOR UPDATE`, id)
	rest, err := scanRestaurant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Apply(rest)
	rest.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx, upsertRestaurantSQL, upsertArgs(rest)...); err != nil {
		return nil, fmt.Errorf("update restaurant: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rest, nil
}

// Delete removes a restaurant and, by cascade, its scans.
func (r *RestaurantRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM restaurants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetVerified flips the verification flag.
func (r *RestaurantRepo) SetVerified(ctx context.Context, id string, verified bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE restaurants SET verified = $2, updated_at = now() WHERE id = $1`, id, verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExpiringBefore returns verified restaurants whose certificate expires before t.
func (r *RestaurantRepo) ExpiringBefore(ctx context.Context, t time.Time) ([]domain.Restaurant, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+restaurantColumns+` FROM restaurants
		WHERE verified AND expiry_date IS NOT NULL AND expiry_date < $1
		ORDER BY expiry_date
	`, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rs []domain.Restaurant
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		rs = append(rs, *rest)
	}
	return rs, rows.Err()
}

// Stats returns directory-wide totals.
func (r *RestaurantRepo) Stats(ctx context.Context) (*domain.Stats, error) {
	var s domain.Stats
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE verified),
		       COUNT(*) FILTER (WHERE NOT verified),
		       COALESCE(SUM(qr_scan_count), 0)
		FROM restaurants
	`).Scan(&s.Restaurants, &s.Verified, &s.Pending, &s.Scans)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanRestaurant(row pgx.Row) (*domain.Restaurant, error) {
	var r domain.Restaurant
	err := row.Scan(
		&r.ID, &r.Name, &r.Address, &r.Province, &r.Cuisine, &r.Phone, &r.OpenHours, &r.Description,
		&r.Latitude, &r.Longitude, &r.CertificationID, &r.IssuingAuthority,
		&r.CertifiedDate, &r.ExpiryDate, &r.Verified, &r.TxHash, &r.BlockNumber,
		&r.Rating, &r.ReviewCount, &r.QRScanCount, &r.OwnerID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// filterClause renders the WHERE clause for f with $n placeholders.
func filterClause(f domain.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Province != "" {
		conds = append(conds, "province = "+arg(f.Province))
	}
	if f.Verified != nil {
		conds = append(conds, "verified = "+arg(*f.Verified))
	}
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		conds = append(conds, fmt.Sprintf("(name ILIKE %[1]s OR address ILIKE %[1]s OR cuisine ILIKE %[1]s)", p))
	}
	if b := f.Bounds; b != nil {
		conds = append(conds, fmt.Sprintf("latitude BETWEEN %s AND %s", arg(b.MinLat), arg(b.MaxLat)))
		minLng, maxLng := arg(b.MinLng), arg(b.MaxLng)
		if b.MinLng <= b.MaxLng {
			conds = append(conds, fmt.Sprintf("longitude BETWEEN %s AND %s", minLng, maxLng))
		} else {
			conds = append(conds, fmt.Sprintf("(longitude >= %s OR longitude <= %s)", minLng, maxLng))
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
