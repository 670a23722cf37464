package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// subjectKey is the Locals key holding the authenticated subject.
const subjectKey = "auth_subject"

// RequireAuth rejects requests without a valid HS256 bearer token signed
// with the configured secret. With no secret configured every request is
// rejected.
func RequireAuth(auth AuthSettings) fiber.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(auth.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *fiber.Ctx) error {
		if len(auth.Secret) == 0 {
			return errUnauthorized(c, "authentication is not configured")
		}

		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return errUnauthorized(c, "missing bearer token")
		}

		var claims jwt.RegisteredClaims
		_, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (interface{}, error) {
			return auth.Secret, nil
		})
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			return errUnauthorized(c, msg)
		}

		c.Locals(subjectKey, claims.Subject)
		return c.Next()
	}
}

// Subject returns the authenticated subject set by RequireAuth.
func Subject(c *fiber.Ctx) string {
	s, _ := c.Locals(subjectKey).(string)
	return s
}
