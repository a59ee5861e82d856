package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/metrics"
	"github.com/iliyamo/items-api/internal/utils"
)

// RequestID tags every request with a KSUID, reusing an incoming
// X-Request-ID when the client sent one, and echoes it on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = utils.NewKSUID()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// RequestLog writes one structured line per request and observes its
// latency. Handler errors are rendered here through c.Error so the logged
// status is the one the client receives. m may be nil.
func RequestLog(log *zap.SugaredLogger, m *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req, res := c.Request(), c.Response()
			fields := []any{
				"id", res.Header().Get(echo.HeaderXRequestID),
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency", elapsed,
				"user", userLabel(c),
			}
			switch {
			case res.Status >= 500:
				log.Errorw("request", append(fields, "err", err)...)
			case err != nil:
				log.Infow("request", append(fields, "err", err)...)
			default:
				log.Infow("request", fields...)
			}

			if m != nil {
				route := c.Path()
				if route == "" {
					route = "unmatched"
				}
				m.ObserveRequest(route, req.Method, strconv.Itoa(res.Status), elapsed.Seconds())
			}
			return nil
		}
	}
}
