package mapview

import "github.com/halalchain/halalmap/internal/core/domain"

// Selection tracks the focused and hovered entities.
type Selection struct {
	FocusedID string `json:"focused_id,omitempty"`
	HoveredID string `json:"hovered_id,omitempty"`
}

// Focus selects id and moves the viewport onto p at the detail zoom. A
// non-finite point leaves the state unchanged.
func (c Controller) Focus(s State, id string, p domain.GeoPoint) State {
	if id == "" || !p.Valid() {
		return s
	}
	detail := c.DetailZoom
	if detail == 0 {
		detail = 12
	}

	s.Drag = nil
	s.Selection.FocusedID = id
	s.Viewport.SetCenter(p)
	s.Viewport.SetZoom(detail)
	return s
}

// Retain drops references to entities for which present reports false.
func (s Selection) Retain(present func(id string) bool) Selection {
	if s.FocusedID != "" && !present(s.FocusedID) {
		s.FocusedID = ""
	}
	if s.HoveredID != "" && !present(s.HoveredID) {
		s.HoveredID = ""
	}
	return s
}
