package mapview

import "github.com/halalchain/halalmap/internal/core/domain"

// DefaultCullMargin is how far outside the viewport, in pixels, a marker may
// sit before it is flagged invisible.
const DefaultCullMargin = 50.0

// Locatable is anything that can be placed on the map as a marker.
type Locatable interface {
	MarkerID() string
	Coordinate() domain.GeoPoint
}

// ScreenMarker is the per-frame screen placement of an entity.
type ScreenMarker struct {
	EntityID string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Visible  bool    `json:"visible"`
}

// ProjectMarkers places every entity on screen in input order. Entities with
// non-finite coordinates are skipped; entities further than margin pixels
// outside the viewport are kept with Visible=false. A negative margin selects
// DefaultCullMargin.
func ProjectMarkers[E Locatable](v Viewport, entities []E, margin float64) []ScreenMarker {
	if margin < 0 {
		margin = DefaultCullMargin
	}

	markers := make([]ScreenMarker, 0, len(entities))
	for _, e := range entities {
		p := e.Coordinate()
		if !p.Valid() {
			continue
		}
		p.Lat = ClampLatitude(p.Lat)

		x, y := v.GeoToScreen(p)
		markers = append(markers, ScreenMarker{
			EntityID: e.MarkerID(),
			X:        x,
			Y:        y,
			Visible: x >= -margin && x <= v.Width+margin &&
				y >= -margin && y <= v.Height+margin,
		})
	}
	return markers
}
