package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/apperr"
)

// LoginView is the model of the login page.
type LoginView struct {
	Error    bool
	Logout   bool
	Next     string
	Username string
}

type HandlerConfig struct {
	SuccessURL   string
	CookieSecure bool
	// LoginMiddleware wraps POST /login only, e.g. a rate limiter.
	LoginMiddleware []echo.MiddlewareFunc
}

// Handler serves the form login, logout and the denial page.
type Handler struct {
	creds  CredentialStore
	hasher PasswordHasher
	tokens *TokenIssuer
	cfg    HandlerConfig
	logger zerolog.Logger
}

func NewHandler(creds CredentialStore, hasher PasswordHasher, tokens *TokenIssuer, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	if cfg.SuccessURL == "" {
		cfg.SuccessURL = "/"
	}
	return &Handler{creds: creds, hasher: hasher, tokens: tokens, cfg: cfg, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET(LoginPath, h.ShowLogin)
	g.POST(LoginPath, h.Login, h.cfg.LoginMiddleware...)
	g.POST("/logout", h.Logout)
	g.GET(DeniedPath, h.NotAuthorized)
}

func (h *Handler) ShowLogin(c echo.Context) error {
	q := c.QueryParams()
	return c.Render(http.StatusOK, "login", LoginView{
		Error:  q.Has("error"),
		Logout: q.Has("logout"),
		Next:   SafeNext(q.Get("next")),
	})
}

// Login checks the posted username and password. On success it sets the
// session cookie, and the remember-me cookie when the box was ticked, then
// redirects to next or the configured success URL.
func (h *Handler) Login(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	next := SafeNext(c.FormValue("next"))

	creds, err := h.creds.Credentials(c.Request().Context(), username)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if creds == nil || !h.hasher.Verify(password, creds.PasswordHash) {
		h.logger.Warn().Str("username", username).Str("remote_ip", c.RealIP()).Msg("login failed")
		return c.Redirect(http.StatusFound, failureURL(next))
	}

	p := &Principal{Username: creds.Username, Roles: creds.Roles}
	session, _, err := h.tokens.IssueSession(p)
	if err != nil {
		return err
	}
	SetCookie(c, SessionCookie, session, time.Time{}, h.cfg.CookieSecure)

	if rememberRequested(c.FormValue("remember-me")) {
		token, expires, err := h.tokens.IssueRememberMe(creds.Username, creds.PasswordHash)
		if err != nil {
			return err
		}
		SetCookie(c, RememberMeCookie, token, expires, h.cfg.CookieSecure)
	}

	h.logger.Info().Str("username", p.Username).Strs("roles", p.Roles).Msg("login succeeded")
	if next == "" {
		next = h.cfg.SuccessURL
	}
	return c.Redirect(http.StatusFound, next)
}

func (h *Handler) Logout(c echo.Context) error {
	ClearCookie(c, SessionCookie, h.cfg.CookieSecure)
	ClearCookie(c, RememberMeCookie, h.cfg.CookieSecure)
	if u := UsernameFromContext(c.Request().Context()); u != "" {
		h.logger.Info().Str("username", u).Msg("logout")
	}
	return c.Redirect(http.StatusFound, LoginPath+"?logout")
}

func (h *Handler) NotAuthorized(c echo.Context) error {
	return c.Render(http.StatusForbidden, "not-authorized", nil)
}

func failureURL(next string) string {
	if next == "" {
		return LoginPath + "?error"
	}
	return LoginPath + "?error&next=" + url.QueryEscape(next)
}

func rememberRequested(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "yes", "1":
		return true
	}
	return false
}
