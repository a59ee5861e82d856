package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/items-api/internal/config"
)

func newCacheServer(t *testing.T, rdb *redis.Client) (*echo.Echo, *int) {
	t.Helper()
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true},
		TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20,
	}
	rc := NewRedisCache(cfg, rdb, "items", nil)
	hits := 0
	e := echo.New()
	g := e.Group("/items", rc.Middleware())
	g.GET("/:id", func(c echo.Context) error {
		hits++
		return c.JSON(http.StatusOK, map[string]any{"id": c.Param("id"), "n": hits})
	})
	g.GET("/missing", func(c echo.Context) error {
		hits++
		return echo.ErrNotFound
	})
	g.PUT("/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"ok": true})
	})
	g.DELETE("/:id", func(c echo.Context) error {
		return echo.ErrForbidden
	})
	return e, &hits
}

func do(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestResponseCache_HitAfterMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	e, hits := newCacheServer(t, rdb)

	first := do(e, http.MethodGet, "/items/1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := do(e, http.MethodGet, "/items/1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, *hits)

	other := do(e, http.MethodGet, "/items/2")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Equal(t, 2, *hits)
}

func TestResponseCache_ErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	e, hits := newCacheServer(t, rdb)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/items/missing").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/items/missing").Code)
	assert.Equal(t, 2, *hits)
	assert.Empty(t, mr.Keys())
}

func TestResponseCache_SuccessfulWriteFlushesScope(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	e, hits := newCacheServer(t, rdb)
	require.NoError(t, mr.Set("cache:other:keep", "x"))

	do(e, http.MethodGet, "/items/1")
	do(e, http.MethodGet, "/items/2")
	assert.Len(t, mr.Keys(), 3)

	// a failed write leaves entries alone
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodDelete, "/items/1").Code)
	assert.Len(t, mr.Keys(), 3)

	assert.Equal(t, http.StatusOK, do(e, http.MethodPut, "/items/1").Code)
	assert.Equal(t, []string{"cache:other:keep"}, mr.Keys())

	assert.Equal(t, "MISS", do(e, http.MethodGet, "/items/1").Header().Get("X-Cache"))
	assert.Equal(t, 3, *hits)
}

func TestResponseCache_DisabledWithoutClient(t *testing.T) {
	e, hits := newCacheServer(t, nil)
	rec := do(e, http.MethodGet, "/items/1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	do(e, http.MethodGet, "/items/1")
	assert.Equal(t, 2, *hits)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(201, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, 201, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
}
