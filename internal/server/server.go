package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/account"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/middleware"
	"github.com/ehr/patients/internal/platform/render"
)

// CSRFField is the form field carrying the CSRF token.
const CSRFField = "_csrf"

// Deps are the collaborators the HTTP layer needs. Everything is built by the
// caller; New only wires routes and middleware.
type Deps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Patients *patient.Service
	Accounts *account.Service
	Tokens   *auth.TokenIssuer
	Hasher   auth.PasswordHasher
	// StoreHealth serves /health/db for the selected store.
	StoreHealth echo.HandlerFunc
}

func (d Deps) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("server: config is required")
	case d.Patients == nil:
		return errors.New("server: patient service is required")
	case d.Accounts == nil:
		return errors.New("server: account service is required")
	case d.Tokens == nil:
		return errors.New("server: token issuer is required")
	case d.Hasher == nil:
		return errors.New("server: password hasher is required")
	}
	return nil
}

// New builds the echo instance serving the patient desk.
func New(d Deps) (*echo.Echo, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	cfg := d.Config

	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = middleware.ErrorHandler(d.Logger)
	// client addresses come from the socket; forwarding headers are ignored
	e.IPExtractor = echo.ExtractIPDirect()

	e.Use(middleware.Recovery(d.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.Logger))
	e.Use(middleware.SecurityHeaders(cfg.CookieSecure))
	e.Use(auth.Gate(auth.GateConfig{
		Tokens:       d.Tokens,
		Credentials:  d.Accounts,
		CookieSecure: cfg.CookieSecure,
		Logger:       d.Logger,
	}))
	if cfg.CSRFEnabled {
		e.Use(echomw.CSRFWithConfig(echomw.CSRFConfig{
			TokenLookup:    "form:" + CSRFField,
			CookieName:     CSRFField,
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSecure:   cfg.CookieSecure,
			CookieSameSite: http.SameSiteLaxMode,
		}))
	}

	e.StaticFS("/static", render.Static())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.StoreHealth != nil {
		e.GET("/health/db", d.StoreHealth)
	}

	g := e.Group("")

	authHandler := auth.NewHandler(d.Accounts, d.Hasher, d.Tokens, auth.HandlerConfig{
		SuccessURL:      cfg.LoginSuccessURL,
		CookieSecure:    cfg.CookieSecure,
		LoginMiddleware: loginLimiter(cfg.LoginRateLimit),
	}, d.Logger)
	authHandler.RegisterRoutes(g)

	patientHandler := patient.NewHandler(d.Patients)
	patientHandler.RegisterRoutes(g)

	return e, nil
}

// loginLimiter throttles POST /login per client IP. A zero rate disables it.
func loginLimiter(perSecond float64) []echo.MiddlewareFunc {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return []echo.MiddlewareFunc{echomw.RateLimiter(store)}
}
