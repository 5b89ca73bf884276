package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/auth"
)

// ErrorView is the model of the "error" and "not-found" pages.
type ErrorView struct {
	Status    int
	Title     string
	Message   string
	RequestID string
}

// ErrorHandler maps the apperr taxonomy onto responses: authentication and
// authorization failures become redirects, everything else an error page.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		req := c.Request()

		switch {
		case errors.Is(err, apperr.ErrUnauthenticated):
			respond(c.Redirect(http.StatusFound, auth.LoginURL(req)), logger)
			return
		case errors.Is(err, apperr.ErrForbidden):
			respond(c.Redirect(http.StatusFound, auth.DeniedPath), logger)
			return
		}

		view := errorView(err)
		rid, _ := c.Get("request_id").(string)
		view.RequestID = rid
		if view.Status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("request_id", rid).Str("path", req.URL.Path).Msg("unhandled error")
		}

		if req.Method == http.MethodHead {
			respond(c.NoContent(view.Status), logger)
			return
		}
		page := "error"
		if view.Status == http.StatusNotFound {
			page = "not-found"
		}
		if rerr := c.Render(view.Status, page, view); rerr != nil {
			respond(c.String(view.Status, view.Message), logger)
		}
	}
}

func errorView(err error) ErrorView {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return ErrorView{Status: http.StatusNotFound, Title: "Not found", Message: err.Error()}
	case errors.Is(err, apperr.ErrConflict):
		return ErrorView{Status: http.StatusConflict, Title: "Conflict", Message: err.Error()}
	case errors.Is(err, apperr.ErrValidation):
		return ErrorView{Status: http.StatusBadRequest, Title: "Invalid request", Message: err.Error()}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return ErrorView{Status: he.Code, Title: http.StatusText(he.Code), Message: msg}
	}
	return ErrorView{
		Status:  http.StatusInternalServerError,
		Title:   "Error",
		Message: "Something went wrong while processing the request.",
	}
}

func respond(err error, logger zerolog.Logger) {
	if err != nil {
		logger.Error().Err(err).Msg("writing error response")
	}
}
