package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const httpDate = "Mon, 02 Jan 2006 15:04:05 GMT"

// DeprecatedRoute marks a legacy endpoint with its sunset date.
type DeprecatedRoute struct {
	Pattern     string    // Route pattern, e.g. "/api/restaurants/:id"
	SunsetDate  time.Time // Date when the endpoint will be removed
	Alternative string    // Successor pattern with the same parameters
}

// DeprecationMiddleware adds Deprecation, Sunset and successor Link headers
// (RFC 8594, RFC 8288) to responses of deprecated routes.
func DeprecationMiddleware(deprecated []DeprecatedRoute) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		for _, d := range deprecated {
			params, ok := matchPattern(c.Path(), d.Pattern)
			if !ok {
				continue
			}

			c.Set("Deprecation", "true")
			c.Set("Sunset", d.SunsetDate.UTC().Format(httpDate))

			if d.Alternative != "" {
				successor := fmt.Sprintf(`<%s>; rel="successor-version"`, fillPattern(d.Alternative, params))
				if existing := c.GetRespHeader(fiber.HeaderLink); existing != "" {
					successor = existing + ", " + successor
				}
				c.Set(fiber.HeaderLink, successor)
			}
			break
		}

		return err
	}
}

// matchPattern matches path against a pattern whose ":name" segments match
// any single non-empty segment, returning the captured values.
func matchPattern(path, pattern string) (map[string]string, bool) {
	ps := strings.Split(strings.Trim(path, "/"), "/")
	ts := strings.Split(strings.Trim(pattern, "/"), "/")
	if len(ps) != len(ts) {
		return nil, false
	}

	params := map[string]string{}
	for i, t := range ts {
		if strings.HasPrefix(t, ":") {
			if ps[i] == "" {
				return nil, false
			}
			params[t] = ps[i]
			continue
		}
		if ps[i] != t {
			return nil, false
		}
	}
	return params, true
}

func fillPattern(pattern string, params map[string]string) string {
	segs := strings.Split(pattern, "/")
	for i, s := range segs {
		if v, ok := params[s]; ok {
			segs[i] = v
		}
	}
	return strings.Join(segs, "/")
}
