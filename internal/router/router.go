package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/handler"
	"github.com/iliyamo/items-api/internal/metrics"
	"github.com/iliyamo/items-api/internal/middleware"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Log      *zap.SugaredLogger
	Metrics  *metrics.Collector  // may be nil
	Gatherer prometheus.Gatherer // serves /metrics; nil hides the route
	Resolver middleware.SessionResolver
	Auth     *handler.AuthHandler
	Items    *handler.ItemHandler
	Cache    *middleware.ResponseCache // may be nil
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(d.Log)

	// /items/ and /items are the same route
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(
		middleware.RequestID(),
		middleware.RequestLog(d.Log, d.Metrics),
		echomw.Recover(),
		echomw.CORS(),
	)

	RegisterRoutes(e, d.Gatherer)
	jwt := middleware.JWTAuth(d.Resolver, d.Metrics)
	RegisterAuth(e, d.Auth, jwt)
	RegisterItems(e, d.Items, jwt, d.Cache)
	return e
}

// RegisterRoutes registers routes that do not require authentication:
// the welcome root, the health check and the metrics scrape endpoint.
func RegisterRoutes(e *echo.Echo, g prometheus.Gatherer) {
	e.GET("/", handler.Root)
	e.GET("/healthz", handler.Health)
	if g != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

// RegisterAuth registers registration, token issuance and the current-user
// endpoint. Only /users/me requires a token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwt echo.MiddlewareFunc) {
	e.POST("/users", a.Register)
	e.POST("/token", a.Token)
	e.GET("/users/me", a.Me, jwt)
}

// RegisterItems registers the item CRUD endpoints. JWTAuth runs before
// the cache so a cached read is never served to an unauthenticated caller.
func RegisterItems(e *echo.Echo, h *handler.ItemHandler, jwt echo.MiddlewareFunc, cache *middleware.ResponseCache) {
	mws := []echo.MiddlewareFunc{jwt}
	if cache != nil {
		mws = append(mws, cache.Middleware())
	}
	g := e.Group("/items", mws...)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/analysis", h.GetAnalysis)
}
