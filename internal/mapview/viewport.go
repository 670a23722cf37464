package mapview

import (
	"math"

	"github.com/halalchain/halalmap/internal/core/domain"
)

// MaxLatitude is the pole guard applied to every viewport center.
const MaxLatitude = 85.0

// ZoomRange bounds the zoom levels a viewport may take.
type ZoomRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefaultZoomRange is used when a Viewport carries no explicit range.
var DefaultZoomRange = ZoomRange{Min: 3, Max: 15}

// Clamp returns z limited to the range.
func (r ZoomRange) Clamp(z int) int {
	if z < r.Min {
		return r.Min
	}
	if z > r.Max {
		return r.Max
	}
	return z
}

// ClampLatitude limits lat to the pole guard.
func ClampLatitude(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

// Viewport is the navigable state of a map: where it is centred, how far it
// is zoomed in and how large the display area is.
//
// Center.Lng is stored without normalisation; it is only wrapped when tile
// addresses are computed, so long pans accumulate without jumps.
type Viewport struct {
	Center domain.GeoPoint `json:"center"`
	Zoom   int             `json:"zoom"`
	Width  float64         `json:"width"`
	Height float64         `json:"height"`
	Limits ZoomRange       `json:"limits"`
}

// NewViewport builds a viewport, clamping zoom and latitude.
func NewViewport(center domain.GeoPoint, zoom int, width, height float64, limits ZoomRange) Viewport {
	v := Viewport{Limits: limits}
	v.Zoom = v.zoomRange().Clamp(zoom)
	v.SetCenter(center)
	v.Resize(width, height)
	return v
}

func (v Viewport) zoomRange() ZoomRange {
	if v.Limits == (ZoomRange{}) {
		return DefaultZoomRange
	}
	return v.Limits
}

// SetZoom clamps z to the zoom range and reports whether the zoom changed.
func (v *Viewport) SetZoom(z int) bool {
	z = v.zoomRange().Clamp(z)
	if z == v.Zoom {
		return false
	}
	v.Zoom = z
	return true
}

// SetCenter moves the viewport to p with its latitude clamped to the pole
// guard. Non-finite points are ignored.
func (v *Viewport) SetCenter(p domain.GeoPoint) {
	if !p.Valid() {
		return
	}
	v.Center = domain.GeoPoint{Lat: ClampLatitude(p.Lat), Lng: p.Lng}
}

// Resize updates the display size. Center and zoom are left alone.
func (v *Viewport) Resize(width, height float64) {
	v.Width = sanitizeExtent(width)
	v.Height = sanitizeExtent(height)
}

func sanitizeExtent(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return x
}

// CenterWorld returns the viewport center in world pixels at the current zoom.
func (v Viewport) CenterWorld() WorldPixel {
	c := v.Center
	c.Lat = ClampLatitude(c.Lat)
	return GeoToWorld(c, v.Zoom)
}

// ScreenToWorld converts a position relative to the viewport's top-left
// corner into world pixels at the current zoom.
func (v Viewport) ScreenToWorld(x, y float64) WorldPixel {
	cw := v.CenterWorld()
	return WorldPixel{
		X: cw.X + (x - v.Width/2),
		Y: cw.Y + (y - v.Height/2),
	}
}

// ScreenToGeo returns the geographic point displayed at screen position (x, y).
func (v Viewport) ScreenToGeo(x, y float64) domain.GeoPoint {
	return WorldToGeo(v.ScreenToWorld(x, y), v.Zoom)
}

// WorldToScreen places a world pixel on screen. Horizontally the copy of the
// world nearest to the viewport center is chosen, matching tile wraparound.
func (v Viewport) WorldToScreen(w WorldPixel) (x, y float64) {
	cw := v.CenterWorld()
	dx := wrapDelta(w.X-cw.X, WorldSize(v.Zoom))
	return v.Width/2 + dx, v.Height/2 + (w.Y - cw.Y)
}

// GeoToScreen returns the screen position of p at the current zoom.
func (v Viewport) GeoToScreen(p domain.GeoPoint) (x, y float64) {
	return v.WorldToScreen(GeoToWorld(p, v.Zoom))
}

// wrapDelta folds d into [-size/2, size/2).
func wrapDelta(d, size float64) float64 {
	d = math.Mod(d, size)
	if d >= size/2 {
		d -= size
	} else if d < -size/2 {
		d += size
	}
	return d
}
