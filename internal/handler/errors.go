package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/analysis"
	"github.com/iliyamo/items-api/internal/auth"
	"github.com/iliyamo/items-api/internal/middleware"
	"github.com/iliyamo/items-api/internal/repository"
)

// errorRule maps one internal error kind to what the client sees.
type errorRule struct {
	target    error
	status    int
	message   string
	challenge bool // send WWW-Authenticate: Bearer
}

// errorTable is the only place internal failures become HTTP responses.
// Rules are matched in order with errors.Is. Token failures of every kind
// share one message so clients cannot tell expired, forged and malformed
// tokens apart.
var errorTable = []errorRule{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "Incorrect username or password", true},
	{middleware.ErrMissingBearer, http.StatusUnauthorized, "Not authenticated", true},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "Could not validate credentials", true},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "Could not validate credentials", true},
	{auth.ErrForbidden, http.StatusForbidden, "Not enough permissions", false},
	{repository.ErrNotFound, http.StatusNotFound, "Item not found", false},
	{repository.ErrEmailExists, http.StatusBadRequest, "Email already registered", false},
	{repository.ErrUsernameExists, http.StatusBadRequest, "Username already registered", false},
	{analysis.ErrUnavailable, http.StatusInternalServerError, "Failed to communicate with analysis service", false},
}

const internalMessage = "Internal server error"

// classify resolves err against errorTable, then against the typed errors
// that carry their own status.
func classify(err error) (status int, message string, challenge bool) {
	for _, r := range errorTable {
		if errors.Is(err, r.target) {
			return r.status, r.message, r.challenge
		}
	}

	var se *analysis.StatusError
	if errors.As(err, &se) {
		return se.Code, "Analysis service error: " + se.Body, false
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = fmt.Sprint(he.Message)
		}
		if he.Code >= http.StatusInternalServerError {
			msg = internalMessage
		}
		return he.Code, msg, false
	}
	return http.StatusInternalServerError, internalMessage, false
}

// HTTPErrorHandler renders every error returned by handlers and middleware
// as {"detail": message}. Server-side failures are logged with their full
// chain; the client only sees the generic message.
func HTTPErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg, challenge := classify(err)
		if status >= http.StatusInternalServerError {
			log.Errorw("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "err", err)
		}
		if challenge {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, echo.Map{"detail": msg})
		}
		if werr != nil {
			log.Warnw("write error response", "err", werr)
		}
	}
}

// badRequest is a validation failure with a client-facing message.
func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
