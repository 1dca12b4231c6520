package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-find/internal/config"
	"github.com/iliyamo/campus-find/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/campus-find/internal/middleware" // import middleware for session authentication and rate limiting
)

// RegisterRoutes registers every route the backend exposes. The path
// layout follows the contract the front end was built against: all
// endpoints live under /api, auth operations under /api/auth.
//
// Three middleware tiers are applied:
//   - the signup/login group carries the token-bucket rate limiter
//   - /api/auth/me, /api/auth/profile and /api/auth/change-password
//     require a valid session
//   - /api/session uses the optional variant so anonymous requests
//     succeed with an anonymous answer
func RegisterRoutes(e *echo.Echo, a *handler.AuthHandler, users middleware.UserSource, cfg config.Config, rdb *redis.Client) {
	// Health check for load balancers and monitoring.
	e.GET("/api/health", handler.Health)

	// Unauthenticated credential operations. These are the endpoints
	// worth brute-forcing, so the rate limiter lives here and nowhere
	// else.
	public := e.Group("/api/auth")
	public.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	public.POST("/signup", a.Signup)
	public.POST("/login", a.Login)

	// Operations on the caller's own account. The session middleware
	// re-fetches the user on every request, so a deactivated account
	// loses access immediately even with a valid token in hand.
	protected := e.Group("/api/auth")
	protected.Use(middleware.RequireSession(cfg.JWTSecret, users))
	protected.GET("/me", a.Me)
	protected.PUT("/profile", a.UpdateProfile)
	protected.PUT("/change-password", a.ChangePassword)

	// Session probe: answers for both anonymous and authenticated
	// callers.
	probe := e.Group("/api/session")
	probe.Use(middleware.OptionalSession(cfg.JWTSecret, users))
	probe.GET("", handler.Session)
}
