// Package mapview implements the interactive tile-map engine: Web Mercator
// projection, viewport state, tile grid layout, marker layout and the
// pointer/wheel interaction state machine that drives them.
package mapview

import (
	"math"

	"github.com/halalchain/halalmap/internal/core/domain"
)

// TileSize is the edge length of a raster tile in pixels.
const TileSize = 256.0

// WorldPixel is a position in the world-pixel plane of a specific zoom level.
// It is meaningless without the zoom used to produce it.
type WorldPixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorldSize returns the edge length of the world-pixel plane at zoom.
func WorldSize(zoom int) float64 {
	return math.Ldexp(TileSize, zoom)
}

// GeoToWorld projects p onto the world-pixel plane at zoom using spherical
// Web Mercator. Latitude must already be inside the pole guard; the result
// is undefined otherwise.
func GeoToWorld(p domain.GeoPoint, zoom int) WorldPixel {
	size := WorldSize(zoom)
	latRad := p.Lat * math.Pi / 180

	// atanh(sin φ) == ln(tan(π/4 + φ/2)) but stays accurate near the poles.
	y := (0.5 - math.Atanh(math.Sin(latRad))/(2*math.Pi)) * size
	x := (p.Lng + 180) / 360 * size

	return WorldPixel{X: x, Y: y}
}

// WorldToGeo is the inverse of GeoToWorld.
func WorldToGeo(w WorldPixel, zoom int) domain.GeoPoint {
	size := WorldSize(zoom)
	lng := w.X/size*360 - 180
	n := math.Pi * (1 - 2*w.Y/size)
	lat := math.Atan(math.Sinh(n)) * 180 / math.Pi

	return domain.GeoPoint{Lat: lat, Lng: lng}
}
