package middleware

import (
	"crypto/hmac"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AdminAuth guards operator endpoints with a static bearer token.
// Requests are refused when no token is configured.
func AdminAuth(getToken func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := getToken()
			if token == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "ADMIN_TOKEN not configured"})
			}
			if !validToken(token, presentedToken(c.Request())) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
			}
			return next(c)
		}
	}
}

func presentedToken(r *http.Request) string {
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return strings.TrimSpace(ah[len("Bearer "):])
	}
	return r.Header.Get("X-Admin-Token")
}

func validToken(want, got string) bool {
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(want), []byte(got))
}
