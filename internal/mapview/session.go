package mapview

import (
	"github.com/halalchain/halalmap/internal/core/domain"
)

// Options configures a Session.
type Options struct {
	Controller   Controller
	CullMargin   float64
	TileTemplate string
}

func (o Options) withDefaults() Options {
	if o.CullMargin == 0 {
		o.CullMargin = DefaultCullMargin
	}
	if o.Controller == (Controller{}) {
		o.Controller = DefaultController()
	}
	return o
}

// Status is the legend and fetch indicator of a frame.
type Status struct {
	Loading   bool   `json:"loading"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable"`
	Total     int    `json:"total"`
	Verified  int    `json:"verified"`
	Pending   int    `json:"pending"`
}

// Frame is everything a renderer needs to draw one map view.
type Frame struct {
	Viewport  Viewport           `json:"viewport"`
	Mode      string             `json:"mode"`
	Tiles     []Tile             `json:"tiles"`
	Markers   []ScreenMarker     `json:"markers"`
	Selection Selection          `json:"selection"`
	Focused   *domain.Restaurant `json:"focused,omitempty"`
	Status    Status             `json:"status"`
}

// FetchOutcome classifies how a Session handled a FetchResult.
type FetchOutcome string

const (
	FetchApplied FetchOutcome = "applied"
	FetchStale   FetchOutcome = "stale"
	FetchFailed  FetchOutcome = "error"
)

// Session is one interactive map view. It is not safe for concurrent use;
// the owning goroutine applies events and fetch results in turn.
type Session struct {
	opts     Options
	loader   *Loader
	state    State
	filter   domain.Filter
	entities []domain.Restaurant
	status   Status
}

// NewSession creates a session showing the controller's home view.
func NewSession(loader *Loader, opts Options, width, height float64) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:   opts,
		loader: loader,
		state:  opts.Controller.Initial(width, height),
	}
}

// State returns the current interaction state.
func (s *Session) State() State { return s.state }

// Filter returns the filter of the most recent request.
func (s *Session) Filter() domain.Filter { return s.filter }

// Entities returns the current entity snapshot.
func (s *Session) Entities() []domain.Restaurant { return s.entities }

// Dispatch applies an input event.
func (s *Session) Dispatch(ev Event) {
	s.state = s.opts.Controller.Apply(s.state, ev)
}

// Select focuses the entity with the given id if it is in the snapshot.
func (s *Session) Select(id string) bool {
	r, ok := s.lookup(id)
	if !ok {
		return false
	}
	s.Dispatch(MarkerClick{ID: r.ID, Point: r.Coordinate()})
	return true
}

// Hover marks id as hovered; unknown ids clear the hover.
func (s *Session) Hover(id string) {
	if _, ok := s.lookup(id); !ok {
		id = ""
	}
	s.Dispatch(Hover{ID: id})
}

// SetFilter schedules a debounced fetch for f.
func (s *Session) SetFilter(f domain.Filter) {
	s.filter = f
	s.status.Loading = true
	s.loader.Request(f)
}

// Refresh fetches the current filter immediately.
func (s *Session) Refresh() uint64 {
	s.status.Loading = true
	return s.loader.Issue(s.filter)
}

// ApplyFetch installs r if it answers the latest request. Stale results are
// ignored. A failed fetch empties the snapshot and flags a retryable error;
// the viewport is left alone either way.
func (s *Session) ApplyFetch(r FetchResult) FetchOutcome {
	if !s.loader.IsCurrent(r.Seq) {
		return FetchStale
	}
	s.status.Loading = false

	if r.Err != nil {
		s.entities = nil
		s.status = Status{Error: r.Err.Error(), Retryable: true}
		s.state.Selection = s.state.Selection.Retain(func(string) bool { return false })
		return FetchFailed
	}

	s.entities = r.Restaurants
	s.status = Legend(r.Restaurants)
	s.state.Selection = s.state.Selection.Retain(func(id string) bool {
		_, ok := s.lookup(id)
		return ok
	})
	return FetchApplied
}

// Frame recomputes tiles and markers from the current state.
func (s *Session) Frame() Frame {
	return Render(s.state, s.entities, s.status, s.opts)
}

// Legend counts verified and pending entities.
func Legend(entities []domain.Restaurant) Status {
	st := Status{Total: len(entities)}
	for _, e := range entities {
		if e.Verified {
			st.Verified++
		} else {
			st.Pending++
		}
	}
	return st
}

// Render builds the frame for state over entities. It backs Session.Frame
// and serves one-shot frames that need no session.
func Render(state State, entities []domain.Restaurant, status Status, opts Options) Frame {
	opts = opts.withDefaults()
	v := state.Viewport
	tiles := ComputeTiles(v)
	if opts.TileTemplate != "" {
		for i := range tiles {
			tiles[i].URL = tiles[i].Expand(opts.TileTemplate)
		}
	}

	f := Frame{
		Viewport:  v,
		Mode:      state.Mode().String(),
		Tiles:     tiles,
		Markers:   ProjectMarkers(v, entities, opts.CullMargin),
		Selection: state.Selection,
		Status:    status,
	}
	if r, ok := find(entities, state.Selection.FocusedID); ok {
		f.Focused = &r
	}
	return f
}

func (s *Session) lookup(id string) (domain.Restaurant, bool) {
	return find(s.entities, id)
}

func find(entities []domain.Restaurant, id string) (domain.Restaurant, bool) {
	if id == "" {
		return domain.Restaurant{}, false
	}
	for _, r := range entities {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Restaurant{}, false
}
