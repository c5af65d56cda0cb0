package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/models"
)

const claimContextKey = "api_claim"

// Middleware guards API routes with bearer tokens.
type Middleware struct {
	authService *Service
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{
		authService: authService,
	}
}

// Authenticate validates the bearer token and stores its claims on the
// request. The token comes from the Authorization header, falling back to
// the token cookie so browser clients work without scripting the header.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return errcodes.Unauthorized()
		}

		claim, err := m.authService.ValidateToken(token)
		if err != nil {
			return err
		}

		StoreClaim(c, claim)
		return next(c)
	}
}

// StoreClaim attaches validated claims to the request context for
// ClaimFromContext to find.
func StoreClaim(c echo.Context, claim *ApiClaim) {
	c.Set(claimContextKey, claim)
}

// RequireRole allows the request through when the token carries at least one
// of the given roles. Must run after Authenticate.
func (m *Middleware) RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claim, ok := c.Get(claimContextKey).(*ApiClaim)
			if !ok {
				return errcodes.Unauthorized()
			}
			if !claim.HasAnyRole(roles...) {
				return errcodes.Forbidden("This action")
			}
			return next(c)
		}
	}
}

// ClaimFromContext returns the claims Authenticate stored, or nil if the
// request never passed through it.
func ClaimFromContext(c echo.Context) *ApiClaim {
	claim, _ := c.Get(claimContextKey).(*ApiClaim)
	return claim
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}

	cookie, err := c.Cookie(TokenCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}
