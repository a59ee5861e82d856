package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/items-api/internal/auth"
	"github.com/iliyamo/items-api/internal/handler"
	"github.com/iliyamo/items-api/internal/metrics"
	"github.com/iliyamo/items-api/internal/repository"
)

type stack struct {
	e     *echo.Echo
	users *repository.MemoryUsers
	clock *abtime.ManualTime
}

func newStack(t *testing.T, ttl time.Duration) *stack {
	t.Helper()
	store := repository.NewMemoryStore()
	users := store.Users()
	clock := abtime.NewManualAtTime(time.Unix(1700000000, 0))

	codec, err := auth.NewCodec("router-test-secret", "HS256", clock)
	require.NoError(t, err)
	hasher := auth.NewHasher(bcrypt.MinCost)
	authn, err := auth.NewAuthenticator(users, hasher, codec, ttl)
	require.NoError(t, err)

	m := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m)

	e := New(Deps{
		Metrics:  m,
		Gatherer: reg,
		Resolver: auth.NewResolver(codec, users),
		Auth:     handler.NewAuthHandler(users, hasher, authn, m),
		Items:    handler.NewItemHandler(store.Items(), nil, nil, nil),
	})
	return &stack{e: e, users: users, clock: clock}
}

func (s *stack) do(method, path, body, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *stack) register(t *testing.T, username, password string) {
	t.Helper()
	body := `{"email":"` + username + `@example.com","username":"` + username + `","password":"` + password + `"}`
	rec := s.do(http.MethodPost, "/users/", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *stack) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *stack) token(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.login(t, username, password)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "bearer", body.TokenType)
	return body.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertUnauthorized(t *testing.T, rec *httptest.ResponseRecorder, msg string) {
	t.Helper()
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
	assert.Equal(t, msg, decode(t, rec)["detail"])
}

func TestScenario_LoginThenResolve(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	s.register(t, "alice", "pw1")
	tok := s.token(t, "alice", "pw1")

	rec := s.do(http.MethodGet, "/users/me/", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, "alice@example.com", me["email"])
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestScenario_WrongPassword(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	s.register(t, "alice", "pw1")

	assertUnauthorized(t, s.login(t, "alice", "nope"), "Incorrect username or password")
	assertUnauthorized(t, s.login(t, "mallory", "pw1"), "Incorrect username or password")
}

func TestScenario_NonOwnerCannotModify(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	s.register(t, "alice", "pw1")
	s.register(t, "bob", "pw2")
	alice := s.token(t, "alice", "pw1")
	bob := s.token(t, "bob", "pw2")

	rec := s.do(http.MethodPost, "/items/", `{"title":"Lamp","description":"brass"}`, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode(t, rec)
	id := "/items/" + jsonNumber(item["id"])

	// bob can read but not write
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, id, "", bob).Code)
	rec = s.do(http.MethodPut, id, `{"title":"Mine"}`, bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not enough permissions", decode(t, rec)["detail"])
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, id, "", bob).Code)

	rec = s.do(http.MethodPut, id, `{"title":"Lamp v2","description":"steel"}`, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lamp v2", decode(t, rec)["title"])
	assert.Equal(t, item["owner_id"], decode(t, rec)["owner_id"])

	rec = s.do(http.MethodDelete, id, "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = s.do(http.MethodGet, id, "", alice)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Item not found", decode(t, rec)["detail"])
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, id, `{"title":"x"}`, bob).Code)
}

func TestScenario_ZeroTTLTokenIsExpired(t *testing.T) {
	s := newStack(t, 0)
	s.register(t, "alice", "pw1")
	tok := s.token(t, "alice", "pw1")

	assertUnauthorized(t, s.do(http.MethodGet, "/users/me", "", tok), "Could not validate credentials")
}

func TestTokenExpiresWithClock(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	s.register(t, "alice", "pw1")
	tok := s.token(t, "alice", "pw1")

	s.clock.Advance(29 * time.Minute)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/items", "", tok).Code)

	s.clock.Advance(time.Minute)
	assertUnauthorized(t, s.do(http.MethodGet, "/items", "", tok), "Could not validate credentials")
}

func TestTokenFailuresAreIndistinguishable(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	s.register(t, "alice", "pw1")
	tok := s.token(t, "alice", "pw1")

	forger, err := auth.NewCodec("some-other-key", "HS256", s.clock)
	require.NoError(t, err)
	forged, err := forger.Issue("alice", time.Hour)
	require.NoError(t, err)

	for _, bad := range []string{forged.Raw, tok + "x", "garbage", tok[:len(tok)/2]} {
		assertUnauthorized(t, s.do(http.MethodGet, "/users/me", "", bad), "Could not validate credentials")
	}
	assertUnauthorized(t, s.do(http.MethodGet, "/users/me", "", ""), "Not authenticated")
	assertUnauthorized(t, s.do(http.MethodPost, "/items", `{"title":"x"}`, ""), "Not authenticated")
}

func TestDeactivatedOrDeletedUserIsLockedOut(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	s.register(t, "alice", "pw1")
	s.register(t, "bob", "pw2")
	alice := s.token(t, "alice", "pw1")
	bob := s.token(t, "bob", "pw2")

	a, err := s.users.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, s.users.SetActive(context.Background(), a.ID, false))
	assertUnauthorized(t, s.do(http.MethodGet, "/items", "", alice), "Could not validate credentials")

	b, err := s.users.FindByUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.NoError(t, s.users.Delete(context.Background(), b.ID))
	assertUnauthorized(t, s.do(http.MethodGet, "/items", "", bob), "Could not validate credentials")
}

func TestRegisterDuplicates(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	s.register(t, "alice", "pw1")

	rec := s.do(http.MethodPost, "/users", `{"email":"ALICE@example.com","username":"alice2","password":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", decode(t, rec)["detail"])
}

func TestListPaging(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	s.register(t, "alice", "pw1")
	tok := s.token(t, "alice", "pw1")
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/items", `{"title":"t"}`, tok).Code)
	}

	rec := s.do(http.MethodGet, "/items?skip=1&limit=1", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.EqualValues(t, 2, items[0]["id"])

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/items?limit=-1", "", tok).Code)
}

func TestPublicRoutes(t *testing.T) {
	s := newStack(t, 30*time.Minute)

	rec := s.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, handler.Version, decode(t, rec)["version"])

	rec = s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	s.login(t, "nobody", "x")
	rec = s.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `items_api_logins_total{outcome="failure"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := newStack(t, 30*time.Minute)
	req := httptest.NewRequest(http.MethodOptions, "/items", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func jsonNumber(v any) string {
	f, _ := v.(float64)
	return strconv.FormatUint(uint64(f), 10)
}
