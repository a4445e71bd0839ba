package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
	adminRole    = "admin"
)

// AdminClaims is the payload of an operator token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth guards routes with an HS256 bearer token carrying role=admin.
// An empty secret rejects every request.
func AdminAuth(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(c *fiber.Ctx) error {
		if len(key) == 0 {
			return apperr.New(apperr.Unauthorized, "Admin access is not configured")
		}

		h := c.Get(authHeader)
		if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
			return apperr.New(apperr.Unauthorized, "Missing or invalid Authorization header")
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])

		var claims AdminClaims
		token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return apperr.New(apperr.Unauthorized, "Invalid or expired token")
		}
		if claims.Role != adminRole {
			return apperr.New(apperr.Unauthorized, "Admin role required")
		}

		c.Locals("adminSubject", claims.Subject)
		return c.Next()
	}
}

// GenerateAdminToken signs an admin token for subject valid for ttl.
func GenerateAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("admin jwt secret not configured")
	}
	now := time.Now()
	claims := &AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
