package mapview

import "github.com/halalchain/halalmap/internal/core/domain"

// Event is an abstract input delivered by the host.
type Event interface {
	event()
}

// PointerDown starts a drag unless it landed on an interactive control.
type PointerDown struct {
	X, Y      float64
	OnControl bool
}

// PointerMove reports the current pointer position.
type PointerMove struct {
	X, Y float64
}

// PointerUp ends a drag.
type PointerUp struct{}

// PointerLeave ends a drag when the pointer exits the map.
type PointerLeave struct{}

// Wheel zooms one level anchored at (X, Y). Positive DeltaY zooms out,
// negative zooms in, zero is ignored.
type Wheel struct {
	X, Y   float64
	DeltaY float64
}

// ZoomIn zooms one level around the viewport center.
type ZoomIn struct{}

// ZoomOut zooms one level around the viewport center.
type ZoomOut struct{}

// ResetView restores the home view and clears the focused entity.
type ResetView struct{}

// MarkerClick focuses an entity.
type MarkerClick struct {
	ID    string
	Point domain.GeoPoint
}

// Hover marks an entity as hovered. An empty ID clears it.
type Hover struct {
	ID string
}

// Resize changes the display size.
type Resize struct {
	Width, Height float64
}

func (PointerDown) event()  {}
func (PointerMove) event()  {}
func (PointerUp) event()    {}
func (PointerLeave) event() {}
func (Wheel) event()        {}
func (ZoomIn) event()       {}
func (ZoomOut) event()      {}
func (ResetView) event()    {}
func (MarkerClick) event()  {}
func (Hover) event()        {}
func (Resize) event()       {}

// Mode is the interaction state.
type Mode int

const (
	Idle Mode = iota
	Dragging
)

func (m Mode) String() string {
	if m == Dragging {
		return "dragging"
	}
	return "idle"
}

// DragSession is the anchor captured on pointer-down. It lives until the
// pointer is released or leaves the map.
type DragSession struct {
	StartX, StartY float64
	StartCenter    WorldPixel
	Zoom           int
}

// State is everything the interaction layer owns for one map view.
type State struct {
	Viewport  Viewport     `json:"viewport"`
	Drag      *DragSession `json:"-"`
	Selection Selection    `json:"selection"`
}

// Mode reports whether a drag is in progress.
func (s State) Mode() Mode {
	if s.Drag != nil {
		return Dragging
	}
	return Idle
}

// Controller holds the fixed parameters of the interaction state machine.
type Controller struct {
	Home       domain.GeoPoint
	HomeZoom   int
	DetailZoom int
	Limits     ZoomRange
}

// DefaultController returns a controller centred on the Indonesian
// archipelago.
func DefaultController() Controller {
	return Controller{
		Home:       domain.GeoPoint{Lat: -2.5, Lng: 118},
		HomeZoom:   5,
		DetailZoom: 12,
		Limits:     DefaultZoomRange,
	}
}

// Initial returns the home state for a display of the given size.
func (c Controller) Initial(width, height float64) State {
	return State{Viewport: NewViewport(c.Home, c.HomeZoom, width, height, c.Limits)}
}

// Apply returns the state that results from ev. s is not modified.
func (c Controller) Apply(s State, ev Event) State {
	switch e := ev.(type) {
	case PointerDown:
		if e.OnControl {
			return s
		}
		s.Drag = &DragSession{
			StartX:      e.X,
			StartY:      e.Y,
			StartCenter: s.Viewport.CenterWorld(),
			Zoom:        s.Viewport.Zoom,
		}
		return s

	case PointerMove:
		if s.Drag == nil {
			return s
		}
		if s.Drag.Zoom != s.Viewport.Zoom {
			// Zoom changed mid-drag: re-anchor without moving.
			s.Drag = &DragSession{StartX: e.X, StartY: e.Y, StartCenter: s.Viewport.CenterWorld(), Zoom: s.Viewport.Zoom}
			return s
		}
		center := WorldPixel{
			X: s.Drag.StartCenter.X - (e.X - s.Drag.StartX),
			Y: s.Drag.StartCenter.Y - (e.Y - s.Drag.StartY),
		}
		s.Viewport.SetCenter(WorldToGeo(center, s.Viewport.Zoom))
		return s

	case PointerUp, PointerLeave:
		s.Drag = nil
		return s

	case Wheel:
		switch {
		case e.DeltaY > 0:
			return c.zoomAt(s, e.X, e.Y, -1)
		case e.DeltaY < 0:
			return c.zoomAt(s, e.X, e.Y, 1)
		}
		return s

	case ZoomIn:
		s.Viewport.SetZoom(s.Viewport.Zoom + 1)
		return s

	case ZoomOut:
		s.Viewport.SetZoom(s.Viewport.Zoom - 1)
		return s

	case ResetView:
		s.Drag = nil
		s.Viewport.SetCenter(c.Home)
		s.Viewport.SetZoom(c.HomeZoom)
		s.Selection.FocusedID = ""
		return s

	case MarkerClick:
		return c.Focus(s, e.ID, e.Point)

	case Hover:
		s.Selection.HoveredID = e.ID
		return s

	case Resize:
		s.Viewport.Resize(e.Width, e.Height)
		return s
	}
	return s
}

// zoomAt changes zoom by delta while keeping the geographic point under the
// screen position (x, y) fixed.
func (c Controller) zoomAt(s State, x, y float64, delta int) State {
	v := s.Viewport
	target := v.zoomRange().Clamp(v.Zoom + delta)
	if target == v.Zoom {
		return s
	}

	anchor := v.ScreenToGeo(x, y)
	aw := GeoToWorld(anchor, target)
	center := WorldPixel{
		X: aw.X - (x - v.Width/2),
		Y: aw.Y - (y - v.Height/2),
	}

	v.SetZoom(target)
	v.SetCenter(WorldToGeo(center, target))
	s.Viewport = v

	if s.Drag != nil {
		s.Drag = &DragSession{StartX: x, StartY: y, StartCenter: v.CenterWorld(), Zoom: target}
	}
	return s
}
