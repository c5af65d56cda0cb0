package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/ratelimit"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	gologger "github.com/robinjoseph08/golib/logger"
)

const (
	// SessionCookie holds the opaque session id.
	SessionCookie = "mbs4_session"
	// TokenCookie mirrors the bearer token for browser clients that cannot
	// set an Authorization header.
	TokenCookie = "mbs4_token"
)

type handler struct {
	authService *Service
	limiter     *ratelimit.Limiter
	baseURL     string
}

// login handles password logins, submitted as JSON or as a plain HTML form.
func (h *handler) login(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromEchoContext(c)

	if !h.limiter.Allow(c.RealIP()) {
		log.Warn("login rate limited", gologger.Data{"ip": c.RealIP()})
		return errcodes.TooManyRequests()
	}

	params := LoginPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	old, err := h.session(c)
	if err != nil {
		return err
	}

	session, err := h.authService.Login(ctx, old, params.Email, params.Password)
	if err != nil {
		return err
	}

	h.setSessionCookie(c, session.ID)
	return errors.WithStack(c.Redirect(http.StatusSeeOther, h.redirectTarget()))
}

// oidcLogin redirects to the provider's authorization endpoint. Without a
// provider name it lists the configured providers instead, which is what a
// login page needs to render its buttons.
func (h *handler) oidcLogin(c echo.Context) error {
	ctx := c.Request().Context()

	params := OIDCLoginQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if params.Provider == "" {
		providers := h.authService.Providers()
		resp := ProvidersResponse{Providers: make([]ProviderInfo, 0, len(providers))}
		for _, p := range providers {
			resp.Providers = append(resp.Providers, ProviderInfo{Name: p.Name, DisplayName: p.DisplayName})
		}
		return errors.WithStack(c.JSON(http.StatusOK, resp))
	}

	session, err := h.ensureSession(c)
	if err != nil {
		return err
	}

	authURL, err := h.authService.BeginOIDC(ctx, session, params.Provider)
	if err != nil {
		return err
	}

	return errors.WithStack(c.Redirect(http.StatusFound, authURL))
}

// callback finishes an OIDC flow. The provider appends its own query
// parameters, so they are read directly instead of going through the binder.
func (h *handler) callback(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromEchoContext(c)

	session, err := h.session(c)
	if err != nil {
		return err
	}
	if session == nil {
		return errcodes.BadRequest("No login in progress.")
	}

	if errCode := c.QueryParam("error"); errCode != "" {
		log.Warn("oidc provider returned an error", gologger.Data{
			"error":             errCode,
			"error_description": c.QueryParam("error_description"),
		})
		return errcodes.Unauthorized()
	}

	session, err = h.authService.CompleteOIDC(ctx, session, c.QueryParam("state"), c.QueryParam("code"))
	if err != nil {
		return err
	}

	h.setSessionCookie(c, session.ID)
	return errors.WithStack(c.Redirect(http.StatusSeeOther, h.redirectTarget()))
}

// token mints a bearer token for the logged-in session and mirrors it into
// the token cookie.
func (h *handler) token(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := h.session(c)
	if err != nil {
		return err
	}

	token, _, err := h.authService.TokenForSession(ctx, session)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.authService.Validity().Seconds()),
		HttpOnly: true,
		Secure:   secureRequest(c),
		SameSite: http.SameSiteLaxMode,
	})

	return errors.WithStack(c.JSON(http.StatusOK, TokenResponse{Token: token}))
}

// logout drops the session and expires both cookies.
func (h *handler) logout(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := h.session(c)
	if err != nil {
		return err
	}
	if session != nil {
		if err := h.authService.Logout(ctx, session); err != nil {
			return err
		}
	}

	h.clearCookie(c, SessionCookie)
	h.clearCookie(c, TokenCookie)
	return errors.WithStack(c.Redirect(http.StatusSeeOther, h.redirectTarget()))
}

// session resolves the request's session cookie against the store. A missing
// or expired session is (nil, nil).
func (h *handler) session(c echo.Context) (*Session, error) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	return h.authService.Sessions().Get(c.Request().Context(), cookie.Value)
}

// ensureSession returns the request's session, creating one and setting the
// cookie when there is none yet.
func (h *handler) ensureSession(c echo.Context) (*Session, error) {
	session, err := h.session(c)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session, err = h.authService.Sessions().Create(c.Request().Context())
	if err != nil {
		return nil, err
	}
	h.setSessionCookie(c, session.ID)
	return session, nil
}

// setSessionCookie writes the session cookie. No MaxAge: the browser keeps
// it for the windowing session and the store's idle TTL does the real
// expiry.
func (h *handler) setSessionCookie(c echo.Context, id string) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secureRequest(c),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secureRequest(c),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) redirectTarget() string {
	if h.baseURL != "" {
		return h.baseURL
	}
	return "/"
}

func secureRequest(c echo.Context) bool {
	return c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https"
}
