package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// ResponseCache caches successful reads of one resource scope in Redis and
// drops the whole scope whenever a write to it succeeds.
type ResponseCache struct {
	cfg   config.CacheConfig
	rdb   *redis.Client
	scope string
	log   *zap.SugaredLogger
}

// NewRedisCache returns a cache for scope (e.g. "items"). rdb may be nil, in
// which case the middleware passes everything through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, scope string, log *zap.SugaredLogger) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ResponseCache{cfg: cfg, rdb: rdb, scope: scope, log: log}
}

func (rc *ResponseCache) enabled() bool { return rc.cfg.Enabled && rc.rdb != nil }

// keyPrefix namespaces every entry of the scope so Flush can find them.
func (rc *ResponseCache) keyPrefix() string {
	return rc.cfg.Prefix + ":" + rc.scope + ":"
}

// keyFor builds a stable key from the request path and raw query. The
// actual path is used, not the route pattern, so /items/1 and /items/2
// never share an entry.
func (rc *ResponseCache) keyFor(r *http.Request) string {
	sum := sha1.Sum([]byte(r.URL.Path + "?" + r.URL.RawQuery))
	return fmt.Sprintf("%s%x", rc.keyPrefix(), sum[:])
}

// Middleware serves cacheable methods from Redis when possible and stores
// 200 responses on a miss. For every other method it runs the handler and,
// if the response is a 2xx, flushes the scope.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !rc.enabled() {
			return next
		}
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return rc.invalidateAfter(c, next)
			}
			return rc.serve(c, next)
		}
	}
}

func (rc *ResponseCache) serve(c echo.Context, next echo.HandlerFunc) error {
	ctx := c.Request().Context()
	key := rc.keyFor(c.Request())

	// Try get from Redis
	if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
		if status, hdr, body, ok := decodePayload(bs); ok {
			for k, vals := range hdr {
				// Echo sets Content-Length itself
				if strings.EqualFold(k, echo.HeaderContentLength) {
					continue
				}
				for _, v := range vals {
					c.Response().Header().Add(k, v)
				}
			}
			c.Response().Header().Set("X-Cache", "HIT")
			c.Response().WriteHeader(status)
			if len(body) > 0 {
				_, _ = c.Response().Write(body)
			}
			return nil
		}
	}

	// Miss: capture
	maxBody := int64(rc.cfg.MaxBodyBytes)
	cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
	c.Response().Writer = cw
	c.Response().Header().Set("X-Cache", "MISS")

	if err := next(c); err != nil {
		return err
	}
	if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
		return nil
	}

	hdr := make(http.Header, len(c.Response().Header()))
	for k, vals := range c.Response().Header() {
		// per-response headers
		if strings.EqualFold(k, "X-Cache") || strings.EqualFold(k, echo.HeaderXRequestID) {
			continue
		}
		hdr[k] = append([]string(nil), vals...)
	}
	payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
	if err != nil {
		return nil
	}
	if err := rc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err(); err != nil {
		rc.log.Warnw("cache store failed", "key", key, "err", err)
	}
	return nil
}

func (rc *ResponseCache) invalidateAfter(c echo.Context, next echo.HandlerFunc) error {
	if err := next(c); err != nil {
		return err
	}
	if s := c.Response().Status; s >= 200 && s < 300 {
		if err := rc.Flush(context.WithoutCancel(c.Request().Context())); err != nil {
			rc.log.Warnw("cache flush failed", "scope", rc.scope, "err", err)
		}
	}
	return nil
}

// Flush deletes every cached entry of the scope.
func (rc *ResponseCache) Flush(ctx context.Context) error {
	if rc.rdb == nil {
		return nil
	}
	iter := rc.rdb.Scan(ctx, 0, rc.keyPrefix()+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rc.rdb.Del(ctx, keys...).Err()
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
