package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/core/ports"
	"github.com/halalchain/halalmap/internal/mapview"
	"github.com/halalchain/halalmap/internal/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// mapMessage is one client event on /ws/map, e.g.
// {"type":"wheel","x":400,"y":250,"delta_y":-120}.
type mapMessage struct {
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	OnControl bool    `json:"on_control"`
	DeltaY    float64 `json:"delta_y"`
	ID        string  `json:"id"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Province  string  `json:"province"`
	Search    string  `json:"search"`
	Verified  *bool   `json:"verified"`
}

// serverMessage is sent to the client: a frame after every state change, or
// an error for a message that could not be applied.
type serverMessage struct {
	Type    string         `json:"type"` // "frame" | "error"
	Frame   *mapview.Frame `json:"frame,omitempty"`
	Message string         `json:"message,omitempty"`
}

// applyMapMessage feeds m into the session.
func applyMapMessage(s *mapview.Session, m mapMessage) error {
	switch m.Type {
	case "pointerdown":
		s.Dispatch(mapview.PointerDown{X: m.X, Y: m.Y, OnControl: m.OnControl})
	case "pointermove":
		s.Dispatch(mapview.PointerMove{X: m.X, Y: m.Y})
	case "pointerup":
		s.Dispatch(mapview.PointerUp{})
	case "pointerleave":
		s.Dispatch(mapview.PointerLeave{})
	case "wheel":
		s.Dispatch(mapview.Wheel{X: m.X, Y: m.Y, DeltaY: m.DeltaY})
	case "zoom_in":
		s.Dispatch(mapview.ZoomIn{})
	case "zoom_out":
		s.Dispatch(mapview.ZoomOut{})
	case "reset":
		s.Dispatch(mapview.ResetView{})
	case "marker_click":
		if !s.Select(m.ID) {
			return fmt.Errorf("unknown restaurant %q", m.ID)
		}
	case "hover":
		s.Hover(m.ID)
	case "resize":
		s.Dispatch(mapview.Resize{Width: m.Width, Height: m.Height})
	case "filter":
		if len(m.Search) > maxSearchLen {
			return fmt.Errorf("search too long (max %d characters)", maxSearchLen)
		}
		s.SetFilter(domain.Filter{Province: m.Province, Search: m.Search, Verified: m.Verified})
	case "retry":
		s.Refresh()
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// querySize reads a positive dimension from the upgrade request.
func querySize(c *websocket.Conn, key string, def float64) float64 {
	v, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil || v < 1 || v > maxFrameSize {
		return def
	}
	return v
}

// MapSocketHandler runs one interactive map session per connection. The
// session is owned by this goroutine: client events, fetch results and
// change notifications are all applied here in turn.
func MapSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		id := uuid.NewString()
		logger := slog.Default().With("session", id, "remote", conn.RemoteAddr().String())

		loader := mapview.NewLoader(deps.Restaurants, deps.Map.Debounce, deps.Map.FetchTimeout)
		defer loader.Close()
		session := mapview.NewSession(loader, deps.Map.Options,
			querySize(conn, "width", defaultFrameWidth),
			querySize(conn, "height", defaultFrameHeight))

		metrics.ActiveMapSessions.Inc()
		defer metrics.ActiveMapSessions.Dec()
		logger.Info("map session opened")

		var changes <-chan ports.RestaurantChange
		if deps.Changes != nil {
			ch, unsubscribe := deps.Changes.Subscribe()
			defer unsubscribe()
			changes = ch
		}

		done := make(chan struct{})
		defer close(done)
		incoming := make(chan []byte)
		readErr := make(chan error, 1)

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					readErr <- err
					return
				}
				select {
				case incoming <- data:
				case <-done:
					return
				}
			}
		}()

		send := func(msg serverMessage) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(msg)
		}
		sendFrame := func(source string) error {
			f := session.Frame()
			metrics.FramesRendered.WithLabelValues(source).Inc()
			return send(serverMessage{Type: "frame", Frame: &f})
		}

		session.Refresh()
		if err := sendFrame("event"); err != nil {
			logger.Warn("map session write failed", "error", err)
			return
		}

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			var err error
			select {
			case data := <-incoming:
				var m mapMessage
				if jerr := json.Unmarshal(data, &m); jerr != nil {
					err = send(serverMessage{Type: "error", Message: "invalid JSON"})
					break
				}
				if aerr := applyMapMessage(session, m); aerr != nil {
					err = send(serverMessage{Type: "error", Message: aerr.Error()})
					break
				}
				err = sendFrame("event")

			case r := <-loader.Results():
				outcome := session.ApplyFetch(r)
				metrics.EntityFetches.WithLabelValues(string(outcome)).Inc()
				switch outcome {
				case mapview.FetchStale:
					continue
				case mapview.FetchFailed:
					logger.Warn("map fetch failed", "seq", r.Seq, "error", r.Err)
				}
				err = sendFrame("fetch")

			case change, ok := <-changes:
				if !ok {
					changes = nil
					continue
				}
				logger.Debug("restaurant changed, refetching", "restaurant_id", change.RestaurantID, "kind", change.Kind)
				session.SetFilter(session.Filter())
				continue

			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				err = conn.WriteMessage(websocket.PingMessage, nil)

			case rerr := <-readErr:
				logger.Info("map session closed", "reason", rerr.Error())
				return
			}

			if err != nil {
				logger.Warn("map session write failed", "error", err)
				return
			}
		}
	}
}
