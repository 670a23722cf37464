package http

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/core/usecases"
	"github.com/halalchain/halalmap/internal/pkg/metrics"
	"github.com/halalchain/halalmap/internal/pkg/telemetry"
)

const (
	maxSearchLen     = 200
	defaultRadius    = 5000.0
	maxRadiusMeters  = 100000.0
	maxScanFieldSize = 200
)

// parseFilter reads the directory filter shared by the list, GeoJSON, map
// and GraphQL entry points.
func parseFilter(c *fiber.Ctx) (domain.Filter, error) {
	f := domain.Filter{
		Province: c.Query("province"),
		Search:   c.Query("search"),
		Offset:   c.QueryInt("offset", 0),
		Limit:    c.QueryInt("limit", 0),
	}
	if len(f.Search) > maxSearchLen {
		return f, errors.New("search too long (max 200 characters)")
	}

	if v := c.Query("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("verified must be true or false")
		}
		f.Verified = &b
	}

	latS, lngS := c.Query("lat"), c.Query("lng")
	if latS != "" || lngS != "" {
		p, err := parsePoint(latS, lngS)
		if err != nil {
			return f, err
		}
		radius := c.QueryFloat("radius", defaultRadius)
		if radius <= 0 || radius > maxRadiusMeters {
			return f, errors.New("radius must be between 1 and 100000 meters")
		}
		f.Near = &p
		f.RadiusMeters = radius
	}

	if bbox := c.Query("bbox"); bbox != "" {
		b, err := parseBBox(bbox)
		if err != nil {
			return f, err
		}
		f.Bounds = &b
	}

	return f, nil
}

func parsePoint(latS, lngS string) (domain.GeoPoint, error) {
	lat, err1 := strconv.ParseFloat(latS, 64)
	lng, err2 := strconv.ParseFloat(lngS, 64)
	p := domain.GeoPoint{Lat: lat, Lng: lng}
	if err1 != nil || err2 != nil || !p.Valid() {
		return p, errors.New("lat and lng must both be numbers")
	}
	if math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		return p, errors.New("lat must be within [-90, 90] and lng within [-180, 180]")
	}
	return p, nil
}

// parseBBox reads "minLng,minLat,maxLng,maxLat". A minLng greater than
// maxLng describes a box crossing the antimeridian.
func parseBBox(s string) (domain.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, errors.New("bbox must be minLng,minLat,maxLng,maxLat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.Bounds{}, errors.New("bbox values must be numbers")
		}
		v[i] = f
	}
	b := domain.Bounds{MinLng: v[0], MinLat: v[1], MaxLng: v[2], MaxLat: v[3]}
	if b.MinLat > b.MaxLat || math.Abs(b.MinLat) > 90 || math.Abs(b.MaxLat) > 90 ||
		math.Abs(b.MinLng) > 180 || math.Abs(b.MaxLng) > 180 {
		return domain.Bounds{}, errors.New("bbox is out of range")
	}
	return b, nil
}

// ListRestaurantsHandler returns a filtered page of restaurants.
func ListRestaurantsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := parseFilter(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		ctx, span := telemetry.Tracer().Start(c.UserContext(), telemetry.SpanListRestaurants)
		defer span.End()

		items, total, err := deps.Restaurants.List(ctx, f)
		if err != nil {
			return errFromService(c, err, "restaurant")
		}
		if items == nil {
			items = []domain.Restaurant{}
		}

		offset, limit := usecases.ClampPage(f.Offset, f.Limit)
		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: items, Pagination: pg})
	}
}

// RestaurantsGeoJSONHandler exports the filtered set as a FeatureCollection.
func RestaurantsGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := parseFilter(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		items, err := deps.Restaurants.Query(c.UserContext(), f)
		if err != nil {
			return errFromService(c, err, "restaurant")
		}

		data, err := restaurantFeatures(items).MarshalJSON()
		if err != nil {
			return errInternal(c, "encode geojson")
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}

func restaurantFeatures(items []domain.Restaurant) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range items {
		feat := geojson.NewFeature(orb.Point{r.Longitude, r.Latitude})
		feat.ID = r.ID
		feat.Properties = geojson.Properties{
			"name":          r.Name,
			"address":       r.Address,
			"province":      r.Province,
			"cuisine":       r.Cuisine,
			"verified":      r.Verified,
			"rating":        r.Rating,
			"qr_scan_count": r.QRScanCount,
		}
		if r.CertificationID != "" {
			feat.Properties["certification_id"] = r.CertificationID
		}
		fc.Append(feat)
	}
	return fc
}

// GetRestaurantHandler returns one restaurant with its recent scans.
func GetRestaurantHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, span := telemetry.Tracer().Start(c.UserContext(), telemetry.SpanGetRestaurant)
		defer span.End()

		r, err := deps.Restaurants.GetByID(ctx, c.Params("id"))
		if err != nil {
			return errFromService(c, err, "restaurant")
		}
		return c.JSON(r)
	}
}

// UpdateRestaurantHandler applies a partial update.
func UpdateRestaurantHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var u domain.RestaurantUpdate
		if err := c.BodyParser(&u); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		r, err := deps.Restaurants.Update(c.UserContext(), c.Params("id"), u)
		if err != nil {
			return errFromService(c, err, "restaurant")
		}
		LoggerFromCtx(c.UserContext()).Info("restaurant updated", "restaurant_id", r.ID, "by", Subject(c))
		return c.JSON(r)
	}
}

// DeleteRestaurantHandler removes a restaurant.
func DeleteRestaurantHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := deps.Restaurants.Delete(c.UserContext(), id); err != nil {
			return errFromService(c, err, "restaurant")
		}
		LoggerFromCtx(c.UserContext()).Info("restaurant deleted", "restaurant_id", id, "by", Subject(c))
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// RecordScanHandler records a QR certificate scan.
func RecordScanHandler(deps *Dependencies) fiber.Handler {
	type scanRequest struct {
		Location string `json:"location"`
		Device   string `json:"device"`
	}

	return func(c *fiber.Ctx) error {
		var req scanRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		if len(req.Location) > maxScanFieldSize || len(req.Device) > maxScanFieldSize {
			return errBadRequest(c, "location and device must be at most 200 characters")
		}
		if req.Device == "" {
			req.Device = c.Get(fiber.HeaderUserAgent)
			if len(req.Device) > maxScanFieldSize {
				req.Device = req.Device[:maxScanFieldSize]
			}
		}

		scan, err := deps.Restaurants.RecordScan(c.UserContext(), c.Params("id"), req.Location, req.Device)
		if err != nil {
			return errFromService(c, err, "restaurant")
		}
		metrics.QRScansRecorded.Inc()
		return c.Status(fiber.StatusCreated).JSON(scan)
	}
}

// VerifyRestaurantHandler returns the certificate view of a restaurant.
func VerifyRestaurantHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := deps.Restaurants.Verify(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromService(c, err, "restaurant")
		}
		return c.JSON(v)
	}
}

// ScheduleCertificationHandler starts certificate expiry tracking.
func ScheduleCertificationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Certifications == nil {
			return errUnavailable(c, "certification scheduling is not configured")
		}

		id := c.Params("id")
		at, err := deps.Certifications.Schedule(c.UserContext(), id)
		if errors.Is(err, usecases.ErrSchedulerUnavailable) {
			return errUnavailable(c, "certification scheduling is not configured")
		}
		if err != nil {
			return errFromService(c, err, "restaurant")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"restaurant_id": id,
			"expires_at":    at,
		})
	}
}

// ProvincesHandler lists the province filter options.
func ProvincesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Restaurants.Provinces())
	}
}

// StatsHandler returns directory totals.
func StatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := deps.Restaurants.Stats(c.UserContext())
		if err != nil {
			return errFromService(c, err, "stats")
		}
		return c.JSON(st)
	}
}
