package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/items-api/internal/model"
)

const userKey = "user"

// SetUser stores u as the resolved caller of the request.
func SetUser(c echo.Context, u model.User) { c.Set(userKey, u) }

// CurrentUser returns the user resolved by JWTAuth. ok is false on routes
// that JWTAuth does not guard.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(userKey).(model.User)
	return u, ok
}

// userLabel identifies the caller in logs: the username when one was
// resolved, "guest" otherwise.
func userLabel(c echo.Context) string {
	if u, ok := CurrentUser(c); ok {
		return u.Username
	}
	return "guest"
}
