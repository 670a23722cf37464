package geospatial

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/halalchain/halalmap/internal/core/domain"
)

const earthRadiusMeters = 6371008.8

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b domain.GeoPoint) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * earthRadiusMeters
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
// It is a coarse prefilter; callers confirm candidates with Distance.
func BoundingBox(center domain.GeoPoint, radiusMeters float64) domain.Bounds {
	latDelta := radiusMeters / 111320.0
	lngDelta := 180.0
	if c := math.Cos(center.Lat * math.Pi / 180); c > 1e-9 {
		lngDelta = math.Min(180, radiusMeters/(111320.0*c))
	}

	b := domain.Bounds{
		MinLat: math.Max(-90, center.Lat-latDelta),
		MaxLat: math.Min(90, center.Lat+latDelta),
		MinLng: center.Lng - lngDelta,
		MaxLng: center.Lng + lngDelta,
	}
	switch {
	case lngDelta >= 180:
		b.MinLng, b.MaxLng = -180, 180
	case b.MinLng < -180:
		b.MinLng += 360
	case b.MaxLng > 180:
		b.MaxLng -= 360
	}
	return b
}

// WithinRadius keeps the restaurants within radiusMeters of center and
// records each one's distance.
func WithinRadius(rs []domain.Restaurant, center domain.GeoPoint, radiusMeters float64) []domain.Restaurant {
	out := make([]domain.Restaurant, 0, len(rs))
	for _, r := range rs {
		d := Distance(center, r.Coordinate())
		if d > radiusMeters {
			continue
		}
		r.Distance = &d
		out = append(out, r)
	}
	return out
}
