package mapview

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// Tile is a raster tile address together with its top-left placement
// relative to the viewport's top-left corner. A window wider than the world
// shows the same address more than once; World tells the copies apart, so
// renderers key tiles by Key rather than by address.
type Tile struct {
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Zoom    int     `json:"z"`
	World   int     `json:"world"`
	ScreenX float64 `json:"left"`
	ScreenY float64 `json:"top"`
	URL     string  `json:"url,omitempty"`
}

// MapTile returns the orb address of the tile.
func (t Tile) MapTile() maptile.Tile {
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Zoom))
}

// Key identifies the tile's placement: its address plus the world copy.
func (t Tile) Key() string {
	return fmt.Sprintf("%d/%d/%d@%d", t.Zoom, t.X, t.Y, t.World)
}

// Path returns the conventional "z/x/y" form of the address.
func (t Tile) Path() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// Expand fills a {z}/{x}/{y} URL template with the tile address.
func (t Tile) Expand(template string) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(t.Zoom),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
	).Replace(template)
}

// WrapTileX folds a column index into [0, 2^zoom).
func WrapTileX(x, zoom int) int {
	n := 1 << zoom
	return ((x % n) + n) % n
}

// ComputeTiles enumerates the tiles covering v plus one tile of overscan on
// every side. Columns wrap around the antimeridian, rows beyond the poles are
// dropped. Columns repeat when the window is wider than the world.
// Placement is derived from the fractional world position of the
// viewport center so sub-pixel pans move tiles continuously.
func ComputeTiles(v Viewport) []Tile {
	n := 1 << v.Zoom
	cw := v.CenterWorld()

	centerX := int(math.Floor(cw.X / TileSize))
	centerY := int(math.Floor(cw.Y / TileSize))

	// Screen position of the center tile's top-left corner.
	originX := v.Width/2 - (cw.X - float64(centerX)*TileSize)
	originY := v.Height/2 - (cw.Y - float64(centerY)*TileSize)

	minI, maxI := tileSpan(originX, v.Width)
	minJ, maxJ := tileSpan(originY, v.Height)

	tiles := make([]Tile, 0, (maxI-minI+1)*(maxJ-minJ+1))
	for j := minJ; j <= maxJ; j++ {
		ty := centerY + j
		if ty < 0 || ty >= n {
			continue
		}
		for i := minI; i <= maxI; i++ {
			tx := centerX + i
			wx := WrapTileX(tx, v.Zoom)
			tiles = append(tiles, Tile{
				X:       wx,
				Y:       ty,
				Zoom:    v.Zoom,
				World:   (tx - wx) / n,
				ScreenX: originX + float64(i)*TileSize,
				ScreenY: originY + float64(j)*TileSize,
			})
		}
	}
	return tiles
}

// tileSpan returns the tile offsets, relative to the tile at origin, needed
// to cover [0, extent) plus one tile of overscan at each end.
func tileSpan(origin, extent float64) (lo, hi int) {
	lo = int(math.Floor(-origin/TileSize)) - 1
	hi = int(math.Ceil((extent-origin)/TileSize)) - 1 + 1
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
