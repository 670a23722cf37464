// Package tiles proxies raster tile requests to an upstream basemap server.
package tiles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/halalchain/halalmap/internal/mapview"
	"github.com/halalchain/halalmap/internal/pkg/metrics"
)

// MaxZoom is the deepest zoom level the proxy will forward.
const MaxZoom = 20

// DefaultUpstream is the dark basemap used when none is configured.
const DefaultUpstream = "https://cartodb-basemaps-a.global.ssl.fastly.net/dark_all/{z}/{x}/{y}.png"

var (
	// ErrInvalidTile marks an address outside the tile pyramid.
	ErrInvalidTile = errors.New("invalid tile address")
	// ErrUpstream marks a failed or non-200 upstream response.
	ErrUpstream = errors.New("tile upstream failed")
	// ErrBusy is returned when the request could not get a rate-limit slot
	// before its context ended.
	ErrBusy = errors.New("tile proxy busy")
)

// Image is a fetched tile.
type Image struct {
	Data        []byte
	ContentType string
}

// Options configures a Fetcher.
type Options struct {
	Upstream   string
	UserAgent  string
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
}

// Fetcher retrieves tiles from the upstream politely: requests share one
// token bucket so a busy map cannot flood the basemap provider.
type Fetcher struct {
	client    *fasthttp.Client
	upstream  string
	userAgent string
	limiter   *rate.Limiter
	timeout   time.Duration
}

// NewFetcher creates a Fetcher, filling unset options with defaults.
func NewFetcher(opts Options) *Fetcher {
	if opts.Upstream == "" {
		opts.Upstream = DefaultUpstream
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "halalmap-tile-proxy/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 50
	}
	if opts.Burst <= 0 {
		opts.Burst = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	return &Fetcher{
		client: &fasthttp.Client{
			Name:                "halalmap",
			MaxConnsPerHost:     64,
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		upstream:  opts.Upstream,
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		timeout:   opts.Timeout,
	}
}

// Parse validates a z/x/y address.
func Parse(z, x, y string) (maptile.Tile, error) {
	zi, errZ := strconv.Atoi(z)
	xi, errX := strconv.Atoi(x)
	yi, errY := strconv.Atoi(y)
	if errZ != nil || errX != nil || errY != nil {
		return maptile.Tile{}, fmt.Errorf("%w: %s/%s/%s", ErrInvalidTile, z, x, y)
	}
	if zi < 0 || zi > MaxZoom {
		return maptile.Tile{}, fmt.Errorf("%w: zoom %d out of range", ErrInvalidTile, zi)
	}
	n := 1 << zi
	if xi < 0 || xi >= n || yi < 0 || yi >= n {
		return maptile.Tile{}, fmt.Errorf("%w: %d/%d/%d outside the pyramid", ErrInvalidTile, zi, xi, yi)
	}
	return maptile.New(uint32(xi), uint32(yi), maptile.Zoom(zi)), nil
}

// URL returns the upstream URL for t.
func (f *Fetcher) URL(t maptile.Tile) string {
	return mapview.Tile{X: int(t.X), Y: int(t.Y), Zoom: int(t.Z)}.Expand(f.upstream)
}

// Fetch retrieves t from the upstream.
func (f *Fetcher) Fetch(ctx context.Context, t maptile.Tile) (*Image, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(f.URL(t))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetUserAgent(f.userAgent)

	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	start := time.Now()
	err := f.client.DoDeadline(req, resp, deadline)
	metrics.TileProxyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, code)
	}

	ct := string(resp.Header.ContentType())
	if ct == "" {
		ct = "image/png"
	}
	return &Image{
		Data:        append([]byte(nil), resp.Body()...),
		ContentType: ct,
	}, nil
}
