package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	SessionCookie    = "SESSION"
	RememberMeCookie = "remember-me"

	LoginPath  = "/login"
	DeniedPath = "/notAuthorized"
)

// Credentials is what the gate needs to know about a stored user.
type Credentials struct {
	Username     string
	PasswordHash string
	Roles        []string
}

// CredentialStore looks users up by username. An unknown username yields an
// error wrapping apperr.ErrNotFound.
type CredentialStore interface {
	Credentials(ctx context.Context, username string) (*Credentials, error)
}

type GateConfig struct {
	Tokens       *TokenIssuer
	Credentials  CredentialStore
	Skipper      func(echo.Context) bool
	CookieSecure bool
	Logger       zerolog.Logger
}

// Gate resolves the request principal from the session cookie, falling back
// to the remember-me cookie, and redirects anonymous requests for
// non-public paths to the login page.
func Gate(cfg GateConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = AuthSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := cfg.resolve(c)
			if p != nil {
				req := c.Request()
				c.SetRequest(req.WithContext(WithPrincipal(req.Context(), p)))
				return next(c)
			}
			if cfg.Skipper(c) {
				return next(c)
			}
			return c.Redirect(http.StatusFound, LoginURL(c.Request()))
		}
	}
}

func (cfg GateConfig) resolve(c echo.Context) *Principal {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		claims, err := cfg.Tokens.Parse(cookie.Value, KindSession)
		if err == nil {
			return &Principal{Username: claims.Subject, Roles: claims.Roles}
		}
		cfg.Logger.Debug().Err(err).Msg("discarding session cookie")
		ClearCookie(c, SessionCookie, cfg.CookieSecure)
	}

	cookie, err := c.Cookie(RememberMeCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	p, err := cfg.remembered(c, cookie.Value)
	if err != nil {
		cfg.Logger.Debug().Err(err).Msg("discarding remember-me cookie")
		ClearCookie(c, RememberMeCookie, cfg.CookieSecure)
		return nil
	}
	return p
}

// remembered re-authenticates from a remember-me token. The user is loaded
// again so the new session carries current roles, and the token is rejected
// if the password changed since it was issued.
func (cfg GateConfig) remembered(c echo.Context, raw string) (*Principal, error) {
	claims, err := cfg.Tokens.Parse(raw, KindRememberMe)
	if err != nil {
		return nil, err
	}
	creds, err := cfg.Credentials.Credentials(c.Request().Context(), claims.Subject)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(claims.Fingerprint), []byte(Fingerprint(creds.PasswordHash))) != 1 {
		return nil, ErrInvalidToken
	}

	p := &Principal{Username: creds.Username, Roles: creds.Roles}
	token, _, err := cfg.Tokens.IssueSession(p)
	if err != nil {
		return nil, err
	}
	SetCookie(c, SessionCookie, token, time.Time{}, cfg.CookieSecure)
	cfg.Logger.Info().Str("username", p.Username).Msg("session restored from remember-me")
	return p, nil
}

// LoginURL is where an anonymous request is sent. Safe (GET/HEAD) requests
// carry their own URI in next so the login can return to it.
func LoginURL(r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return LoginPath
	}
	next := SafeNext(r.URL.RequestURI())
	if next == "" || next == "/" {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(next)
}

// SafeNext returns raw if it is a local absolute path other than the login
// page, and "" otherwise.
func SafeNext(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	if u.Path == LoginPath || u.Path == "/logout" {
		return ""
	}
	return raw
}

// SetCookie writes an HttpOnly cookie scoped to the whole site. A zero
// expires makes it a browser-session cookie.
func SetCookie(c echo.Context, name, value string, expires time.Time, secure bool) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		cookie.Expires = expires
	}
	c.SetCookie(cookie)
}

func ClearCookie(c echo.Context, name string, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
