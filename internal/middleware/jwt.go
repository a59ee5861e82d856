package middleware // package middleware contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/items-api/internal/auth"
	"github.com/iliyamo/items-api/internal/metrics"
	"github.com/iliyamo/items-api/internal/model"
)

// ErrMissingBearer is returned when a protected route is called without a
// bearer token. It matches auth.ErrUnauthenticated.
var ErrMissingBearer = fmt.Errorf("%w: missing bearer token", auth.ErrUnauthenticated)

// SessionResolver turns a bearer token into the live user record.
type SessionResolver interface {
	Resolve(ctx context.Context, bearer string) (model.User, error)
}

// JWTAuth returns an Echo middleware that resolves the Bearer token on each
// request and stores the resolved user in the context. Failures are
// returned as errors for the HTTP error handler to map; nothing is written
// here. m may be nil.
func JWTAuth(r SessionResolver, m *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return ErrMissingBearer
			}

			u, err := r.Resolve(c.Request().Context(), raw)
			if err != nil {
				record(m, outcome(err))
				return err
			}
			record(m, metrics.OutcomeSuccess)

			SetUser(c, u)
			return next(c)
		}
	}
}

// bearerToken extracts the credential from an Authorization header. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, param, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	param = strings.TrimSpace(param)
	return param, param != ""
}

func outcome(err error) string {
	if errors.Is(err, auth.ErrUnauthenticated) {
		return metrics.OutcomeFailure
	}
	return metrics.OutcomeError
}

func record(m *metrics.Collector, outcome string) {
	if m != nil {
		m.Resolve(outcome)
	}
}
