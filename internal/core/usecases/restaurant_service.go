package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/core/ports"
	"github.com/halalchain/halalmap/internal/pkg/geospatial"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// maxSnapshot bounds how many restaurants a map snapshot carries.
	maxSnapshot = 2000
	recentScans = 10

	cachePrefixList = "restaurants:list:"
	cacheKeyStats   = "restaurants:stats"
)

// RestaurantService handles restaurant directory business logic.
type RestaurantService struct {
	restaurants ports.RestaurantRepository
	scans       ports.ScanRepository
	cache       ports.CacheService
	events      ports.EventPublisher
	now         func() time.Time
}

// NewRestaurantService creates a new RestaurantService. cache and events may be nil.
func NewRestaurantService(
	restaurants ports.RestaurantRepository,
	scans ports.ScanRepository,
	cache ports.CacheService,
	events ports.EventPublisher,
) *RestaurantService {
	return &RestaurantService{
		restaurants: restaurants,
		scans:       scans,
		cache:       cache,
		events:      events,
		now:         time.Now,
	}
}

// List returns a page of restaurants matching f and the total match count.
// A Near point with a positive radius restricts results to that circle and
// orders them by distance.
func (s *RestaurantService) List(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error) {
	f = f.Normalized()
	f.Offset, f.Limit = ClampPage(f.Offset, f.Limit)

	type page struct {
		Items []domain.Restaurant `json:"items"`
		Total int                 `json:"total"`
	}

	cacheKey := cachePrefixList + listCacheKey(f)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var p page
			if err := json.Unmarshal(data, &p); err == nil {
				return p.Items, p.Total, nil
			}
		}
	}

	var (
		items []domain.Restaurant
		total int
		err   error
	)
	if f.Near != nil && f.RadiusMeters > 0 {
		items, total, err = s.listNear(ctx, f)
	} else {
		items, total, err = s.restaurants.List(ctx, f)
	}
	if err != nil {
		return nil, 0, err
	}

	// Cache for 1 minute; writes invalidate the whole list prefix anyway.
	if s.cache != nil {
		if data, err := json.Marshal(page{Items: items, Total: total}); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 60)
		}
	}

	return items, total, nil
}

// ClampPage applies the list paging defaults: a non-positive limit becomes
// 50, limits above 500 are capped and negative offsets become 0.
func ClampPage(offset, limit int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return max(offset, 0), limit
}

func (s *RestaurantService) listNear(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error) {
	if !f.Near.Valid() || math.Abs(f.Near.Lat) > 90 {
		return nil, 0, fmt.Errorf("%w: invalid center", domain.ErrInvalidInput)
	}

	q := f
	q.Offset, q.Limit = 0, maxSnapshot
	if q.Bounds == nil {
		box := geospatial.BoundingBox(*f.Near, f.RadiusMeters)
		q.Bounds = &box
	}

	candidates, _, err := s.restaurants.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	within := geospatial.WithinRadius(candidates, *f.Near, f.RadiusMeters)
	sort.SliceStable(within, func(i, j int) bool { return *within[i].Distance < *within[j].Distance })

	total := len(within)
	if f.Offset >= total {
		return []domain.Restaurant{}, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return within[f.Offset:end], total, nil
}

// Query returns the full snapshot of restaurants matching f, as the map
// needs it. Pagination fields are ignored.
func (s *RestaurantService) Query(ctx context.Context, f domain.Filter) ([]domain.Restaurant, error) {
	f.Offset, f.Limit = 0, maxSnapshot
	f = f.Normalized()

	if f.Near != nil && f.RadiusMeters > 0 {
		items, _, err := s.listNear(ctx, f)
		return items, err
	}
	items, _, err := s.restaurants.List(ctx, f)
	return items, err
}

// GetByID returns a single restaurant with its most recent QR scans.
func (s *RestaurantService) GetByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	cacheKey := restaurantCacheKey(id)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var r domain.Restaurant
			if err := json.Unmarshal(data, &r); err == nil {
				return &r, nil
			}
		}
	}

	r, err := s.restaurants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.scans != nil {
		scans, err := s.scans.Recent(ctx, id, recentScans)
		if err != nil {
			return nil, fmt.Errorf("recent scans: %w", err)
		}
		r.RecentScans = scans
	}

	if s.cache != nil {
		if data, err := json.Marshal(r); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600) // 10 min for a single listing
		}
	}

	return r, nil
}

// Update applies a partial update to a restaurant.
func (s *RestaurantService) Update(ctx context.Context, id string, u domain.RestaurantUpdate) (*domain.Restaurant, error) {
	if err := validateUpdate(u); err != nil {
		return nil, err
	}

	r, err := s.restaurants.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}

	s.changed(ctx, id, ports.ChangeUpdated)
	return r, nil
}

// Delete removes a restaurant.
func (s *RestaurantService) Delete(ctx context.Context, id string) error {
	if err := s.restaurants.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, id, ports.ChangeDeleted)
	return nil
}

// RecordScan stores a QR scan for a restaurant and bumps its scan counter.
func (s *RestaurantService) RecordScan(ctx context.Context, id, location, device string) (*domain.QRScan, error) {
	if _, err := s.restaurants.GetByID(ctx, id); err != nil {
		return nil, err
	}

	scan := &domain.QRScan{
		ID:           uuid.NewString(),
		RestaurantID: id,
		Location:     strings.TrimSpace(location),
		Device:       strings.TrimSpace(device),
		ScannedAt:    s.now().UTC(),
	}
	if err := s.scans.Record(ctx, scan); err != nil {
		return nil, fmt.Errorf("record scan: %w", err)
	}

	s.changed(ctx, id, ports.ChangeScanned)
	return scan, nil
}

// Verify returns the certificate view of a restaurant.
func (s *RestaurantService) Verify(ctx context.Context, id string) (*domain.Verification, error) {
	r, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v := domain.NewVerification(*r, s.now())
	return &v, nil
}

// Stats returns directory-wide totals.
func (s *RestaurantService) Stats(ctx context.Context) (*domain.Stats, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKeyStats); err == nil {
			var st domain.Stats
			if err := json.Unmarshal(data, &st); err == nil {
				return &st, nil
			}
		}
	}

	st, err := s.restaurants.Stats(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(st); err == nil {
			_ = s.cache.Set(ctx, cacheKeyStats, data, 60)
		}
	}
	return st, nil
}

// Provinces returns the province filter options.
func (s *RestaurantService) Provinces() []string {
	out := make([]string, len(domain.Provinces))
	copy(out, domain.Provinces)
	return out
}

// Import upserts a batch of restaurants, assigning ids where missing.
func (s *RestaurantService) Import(ctx context.Context, rs []domain.Restaurant) error {
	now := s.now().UTC()
	for i := range rs {
		if rs[i].ID == "" {
			rs[i].ID = uuid.NewString()
		}
		if !rs[i].Coordinate().Valid() || math.Abs(rs[i].Latitude) > 90 || math.Abs(rs[i].Longitude) > 180 {
			return fmt.Errorf("%w: restaurant %q has invalid coordinates", domain.ErrInvalidInput, rs[i].Name)
		}
		if rs[i].CreatedAt.IsZero() {
			rs[i].CreatedAt = now
		}
		rs[i].UpdatedAt = now
	}

	if err := s.restaurants.UpsertBatch(ctx, rs); err != nil {
		return fmt.Errorf("upsert restaurants: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.DeletePrefix(ctx, cachePrefixList)
		_ = s.cache.Delete(ctx, cacheKeyStats)
		for _, r := range rs {
			_ = s.cache.Delete(ctx, restaurantCacheKey(r.ID))
		}
	}
	return nil
}

// Revoke clears a restaurant's verified flag after its certificate lapsed.
func (s *RestaurantService) Revoke(ctx context.Context, id string) error {
	if err := s.restaurants.SetVerified(ctx, id, false); err != nil {
		return err
	}
	s.changed(ctx, id, ports.ChangeExpired)
	return nil
}

// changed invalidates cached views of a restaurant and announces the change.
func (s *RestaurantService) changed(ctx context.Context, id string, kind ports.ChangeKind) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, restaurantCacheKey(id))
		_ = s.cache.Delete(ctx, cacheKeyStats)
		_ = s.cache.DeletePrefix(ctx, cachePrefixList)
	}

	if s.events == nil {
		return
	}
	change := ports.RestaurantChange{RestaurantID: id, Kind: kind, At: s.now().UTC()}
	if err := s.events.PublishRestaurantChange(ctx, change); err != nil {
		// Best-effort; the write already succeeded.
		slog.Warn("publish restaurant change", "restaurant_id", id, "kind", kind, "error", err)
	}
}

func validateUpdate(u domain.RestaurantUpdate) error {
	var problems []string
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		problems = append(problems, "name must not be empty")
	}
	if u.Latitude != nil && (math.IsNaN(*u.Latitude) || math.Abs(*u.Latitude) > 90) {
		problems = append(problems, "latitude must be within [-90, 90]")
	}
	if u.Longitude != nil && (math.IsNaN(*u.Longitude) || math.Abs(*u.Longitude) > 180) {
		problems = append(problems, "longitude must be within [-180, 180]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func restaurantCacheKey(id string) string { return "restaurants:id:" + id }

func listCacheKey(f domain.Filter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "p=%s|q=%s|o=%d|l=%d", f.Province, strings.ToLower(f.Search), f.Offset, f.Limit)
	if f.Verified != nil {
		fmt.Fprintf(&b, "|v=%t", *f.Verified)
	}
	if f.Near != nil {
		fmt.Fprintf(&b, "|near=%.5f,%.5f,%.0f", f.Near.Lat, f.Near.Lng, f.RadiusMeters)
	}
	if f.Bounds != nil {
		fmt.Fprintf(&b, "|bbox=%.5f,%.5f,%.5f,%.5f", f.Bounds.MinLng, f.Bounds.MinLat, f.Bounds.MaxLng, f.Bounds.MaxLat)
	}
	return b.String()
}
