package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-find/internal/auth"
	"github.com/iliyamo/campus-find/internal/model"
)

// UserSource is the slice of the user directory the session middleware
// needs: a lookup by id. *repository.UserRepo satisfies it; tests can
// supply an in-memory fake.
type UserSource interface {
	FindByID(ctx context.Context, id uint64) (model.User, error)
}

// userContextKey is where the authenticated user is stored on the Echo
// context. Handlers read it through CurrentUser.
const userContextKey = "session_user"

// CurrentUser returns the user attached to the request by the session
// middleware. The boolean is false for anonymous requests, which can
// only occur behind OptionalSession.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(userContextKey).(model.User)
	return u, ok
}

// RequireSession returns middleware that enforces a valid bearer
// session token. The token's signature and expiry are checked first,
// then the referenced user is re-fetched from the directory so that a
// deactivated or deleted account is rejected immediately, without any
// token revocation machinery. On success the user is attached to the
// context for handlers; the password hash travels with the model but
// never leaves the process.
func RequireSession(secret string, users UserSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Access token required", "code": "TOKEN_REQUIRED",
				})
			}
			userID, err := auth.ParseSessionToken(secret, raw)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					return c.JSON(http.StatusForbidden, echo.Map{
						"error": "Token expired", "code": "TOKEN_EXPIRED",
					})
				}
				return c.JSON(http.StatusForbidden, echo.Map{
					"error": "Invalid token", "code": "INVALID_TOKEN",
				})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.FindByID(ctx, userID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return c.JSON(http.StatusUnauthorized, echo.Map{
						"error": "User not found", "code": "USER_NOT_FOUND",
					})
				}
				return c.JSON(http.StatusInternalServerError, echo.Map{
					"error": "Authentication error", "code": "AUTH_ERROR",
				})
			}
			if !u.IsActive {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Account is deactivated", "code": "ACCOUNT_DEACTIVATED",
				})
			}

			c.Set(userContextKey, u)
			return next(c)
		}
	}
}

// OptionalSession is the non-enforcing variant: a missing, malformed,
// expired or otherwise unusable token simply leaves the request
// anonymous instead of failing it. Handlers distinguish the two cases
// through the boolean returned by CurrentUser.
func OptionalSession(secret string, users UserSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c)
			if !ok {
				return next(c)
			}
			userID, err := auth.ParseSessionToken(secret, raw)
			if err != nil {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.FindByID(ctx, userID)
			if err == nil && u.IsActive {
				c.Set(userContextKey, u)
			}
			return next(c)
		}
	}
}

// bearerToken extracts the token from an "Authorization: Bearer ..."
// header. The second return is false when the header is absent or not
// a bearer scheme.
func bearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return raw, raw != ""
}
