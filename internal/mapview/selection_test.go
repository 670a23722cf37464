package mapview

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halalchain/halalmap/internal/core/domain"
)

func TestFocus_EndsDrag(t *testing.T) {
	c, s := newState(domain.GeoPoint{}, 5)
	s = c.Apply(s, PointerDown{X: 1, Y: 1})
	s = c.Focus(s, "r1", domain.GeoPoint{Lat: 1, Lng: 1})
	assert.Equal(t, Idle, s.Mode())
}

func TestFocus_IgnoresInvalidInput(t *testing.T) {
	c, s := newState(domain.GeoPoint{Lat: 2, Lng: 3}, 5)

	assert.Equal(t, s, c.Focus(s, "", domain.GeoPoint{Lat: 1, Lng: 1}))
	assert.Equal(t, s, c.Focus(s, "r1", domain.GeoPoint{Lat: math.NaN(), Lng: 1}))
}

func TestFocus_ClampsDetailZoomAndLatitude(t *testing.T) {
	c := Controller{DetailZoom: 20, Limits: DefaultZoomRange}
	s := State{Viewport: NewViewport(domain.GeoPoint{}, 5, 100, 100, DefaultZoomRange)}

	s = c.Focus(s, "north", domain.GeoPoint{Lat: 89, Lng: 0})
	assert.Equal(t, DefaultZoomRange.Max, s.Viewport.Zoom)
	assert.Equal(t, MaxLatitude, s.Viewport.Center.Lat)
}

func TestSelection_Retain(t *testing.T) {
	sel := Selection{FocusedID: "a", HoveredID: "b"}
	keepA := func(id string) bool { return id == "a" }

	assert.Equal(t, Selection{FocusedID: "a"}, sel.Retain(keepA))
	assert.Equal(t, Selection{}, sel.Retain(func(string) bool { return false }))
}
