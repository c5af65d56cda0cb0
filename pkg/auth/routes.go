package auth

import (
	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/ratelimit"
)

// Login attempts per client address. Bursty enough for typos, slow enough
// that online guessing goes nowhere.
const (
	loginRatePerSecond = 0.5
	loginBurst         = 5
)

// NewLoginLimiter returns the per-address limiter for password logins. The
// caller owns its lifecycle.
func NewLoginLimiter() *ratelimit.Limiter {
	return ratelimit.New(loginRatePerSecond, loginBurst)
}

// RegisterRoutesWithGroup registers the auth routes on the given group and
// returns the middleware that gates the API groups.
func RegisterRoutesWithGroup(g *echo.Group, authService *Service, limiter *ratelimit.Limiter, baseURL string) *Middleware {
	h := &handler{
		authService: authService,
		limiter:     limiter,
		baseURL:     baseURL,
	}

	g.POST("/login", h.login)
	g.GET("/login", h.oidcLogin)
	g.GET("/callback", h.callback)
	g.GET("/token", h.token)
	g.GET("/logout", h.logout)

	return NewMiddleware(authService)
}
