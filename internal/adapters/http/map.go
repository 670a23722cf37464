package http

import (
	"context"
	"errors"
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/halalchain/halalmap/internal/adapters/tiles"
	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/mapview"
	"github.com/halalchain/halalmap/internal/pkg/metrics"
	"github.com/halalchain/halalmap/internal/pkg/telemetry"
)

const (
	defaultFrameWidth  = 800
	defaultFrameHeight = 500
	maxFrameSize       = 4096
)

// frameRequest is a stateless viewport description.
type frameRequest struct {
	Center domain.GeoPoint
	Zoom   int
	Width  float64
	Height float64
	Focus  string
	Filter domain.Filter
}

// parseFrameRequest reads lat, lng, zoom, width, height and focus plus the
// directory filter. Missing center and zoom fall back to the home view;
// out-of-range zooms and latitudes are clamped by the viewport itself.
func parseFrameRequest(c *fiber.Ctx, ctrl mapview.Controller) (frameRequest, error) {
	req := frameRequest{
		Center: ctrl.Home,
		Zoom:   c.QueryInt("zoom", ctrl.HomeZoom),
		Width:  c.QueryFloat("width", defaultFrameWidth),
		Height: c.QueryFloat("height", defaultFrameHeight),
		Focus:  c.Query("focus"),
	}

	if latS, lngS := c.Query("lat"), c.Query("lng"); latS != "" || lngS != "" {
		p, err := parsePoint(latS, lngS)
		if err != nil {
			return req, err
		}
		req.Center = p
	}
	if req.Width < 1 || req.Width > maxFrameSize || req.Height < 1 || req.Height > maxFrameSize ||
		math.IsNaN(req.Width) || math.IsNaN(req.Height) {
		return req, errors.New("width and height must be between 1 and 4096")
	}

	f, err := parseFilter(c)
	if err != nil {
		return req, err
	}
	// The map always works on full snapshots; radius queries stay on /v1/restaurants.
	f.Near, f.RadiusMeters, f.Offset, f.Limit = nil, 0, 0, 0
	req.Filter = f
	return req, nil
}

// renderFrame builds the one-shot frame for req from a fresh snapshot.
// A failed fetch still yields a frame, flagged retryable with no markers.
func renderFrame(ctx context.Context, deps *Dependencies, req frameRequest) mapview.Frame {
	ctrl := controllerOf(deps)

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanMapFrame)
	defer span.End()

	entities, err := deps.Restaurants.Query(ctx, req.Filter)
	status := mapview.Legend(entities)
	if err != nil {
		metrics.EntityFetches.WithLabelValues(string(mapview.FetchFailed)).Inc()
		LoggerFromCtx(ctx).Warn("map frame fetch failed", "error", err)
		entities = nil
		status = mapview.Status{Error: "restaurants unavailable", Retryable: true}
	} else {
		metrics.EntityFetches.WithLabelValues(string(mapview.FetchApplied)).Inc()
	}

	state := mapview.State{
		Viewport: mapview.NewViewport(req.Center, req.Zoom, req.Width, req.Height, ctrl.Limits),
	}
	if req.Focus != "" {
		for _, r := range entities {
			if r.ID == req.Focus {
				state = ctrl.Focus(state, r.ID, r.Coordinate())
				break
			}
		}
	}

	metrics.FramesRendered.WithLabelValues("http").Inc()
	return mapview.Render(state, entities, status, deps.Map.Options)
}

// MapFrameHandler returns a one-shot frame for server-side rendering.
func MapFrameHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := parseFrameRequest(c, controllerOf(deps))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.JSON(renderFrame(c.UserContext(), deps, req))
	}
}

// TileHandler proxies one raster tile from the upstream basemap.
func TileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := tiles.Parse(c.Params("z"), c.Params("x"), c.Params("y"))
		if err != nil {
			metrics.TileProxyRequests.WithLabelValues("400").Inc()
			return errBadRequest(c, err.Error())
		}
		if deps.Tiles == nil {
			metrics.TileProxyRequests.WithLabelValues("503").Inc()
			return errUnavailable(c, "tile proxy is not configured")
		}

		ctx, span := telemetry.Tracer().Start(c.UserContext(), telemetry.SpanTileFetch)
		defer span.End()

		img, err := deps.Tiles.Fetch(ctx, t)
		switch {
		case errors.Is(err, tiles.ErrBusy):
			metrics.TileProxyRequests.WithLabelValues("503").Inc()
			c.Set(fiber.HeaderRetryAfter, "1")
			return errUnavailable(c, "tile proxy busy")
		case err != nil:
			metrics.TileProxyRequests.WithLabelValues("502").Inc()
			LoggerFromCtx(ctx).Warn("tile fetch failed", "tile", c.Params("z")+"/"+c.Params("x")+"/"+c.Params("y"), "error", err)
			return errBadGateway(c, "tile upstream failed")
		}

		metrics.TileProxyRequests.WithLabelValues("200").Inc()
		c.Set(fiber.HeaderContentType, img.ContentType)
		return c.Send(img.Data)
	}
}

func controllerOf(deps *Dependencies) mapview.Controller {
	if deps.Map.Options.Controller == (mapview.Controller{}) {
		return mapview.DefaultController()
	}
	return deps.Map.Options.Controller
}
