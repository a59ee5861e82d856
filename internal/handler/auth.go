package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/items-api/internal/auth"
	"github.com/iliyamo/items-api/internal/metrics"
	"github.com/iliyamo/items-api/internal/middleware"
	"github.com/iliyamo/items-api/internal/model"
	"github.com/iliyamo/items-api/internal/repository"
)

// UserCreator checks for an existing email and persists new users.
type UserCreator interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u *model.User) error
}

// PasswordHasher hashes a plain password for storage.
type PasswordHasher interface {
	Hash(secret string) (string, error)
}

// TokenIssuer exchanges a username/password pair for an access token.
type TokenIssuer interface {
	Login(ctx context.Context, username, password string) (auth.Token, error)
}

// AuthHandler bundles dependencies for the user and token endpoints.
type AuthHandler struct {
	Users   UserCreator
	Hasher  PasswordHasher
	Tokens  TokenIssuer
	Metrics *metrics.Collector // may be nil
}

func NewAuthHandler(users UserCreator, hasher PasswordHasher, tokens TokenIssuer, m *metrics.Collector) *AuthHandler {
	return &AuthHandler{Users: users, Hasher: hasher, Tokens: tokens, Metrics: m}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenReq accepts the OAuth2 password form as well as JSON.
type tokenReq struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// userResp never carries the password hash.
type userResp struct {
	ID       uint64 `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

func toUserResp(u model.User) userResp {
	return userResp{ID: u.ID, Email: u.Email, Username: u.Username, IsActive: u.IsActive}
}

// Register handles POST /users.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return badRequest("email, username and password are required")
	}
	// local@domain with something on both sides
	if at := strings.LastIndex(req.Email, "@"); at < 1 || at == len(req.Email)-1 {
		return badRequest("invalid email address")
	}
	if len(req.Password) > auth.MaxPasswordBytes {
		return badRequest(fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}

	ctx := c.Request().Context()
	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		return repository.ErrEmailExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		return err
	}
	u := model.User{Email: req.Email, Username: req.Username, PasswordHash: hash, IsActive: true}
	// the unique keys still catch a concurrent registration
	if err := h.Users.Create(ctx, &u); err != nil {
		return err // duplicates map to 400 in the error table
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Token handles POST /token.
func (h *AuthHandler) Token(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return badRequest("username and password are required")
	}

	tok, err := h.Tokens.Login(c.Request().Context(), req.Username, req.Password)
	switch {
	case err == nil:
		h.record(metrics.OutcomeSuccess)
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.record(metrics.OutcomeFailure)
		return err
	default:
		h.record(metrics.OutcomeError)
		return err
	}
	return c.JSON(http.StatusOK, tokenResp{AccessToken: tok.Raw, TokenType: "bearer"})
}

// Me handles GET /users/me and returns the live record of the caller.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

func (h *AuthHandler) record(outcome string) {
	if h.Metrics != nil {
		h.Metrics.Login(outcome)
	}
}

// currentUser returns the user JWTAuth resolved for this request.
func currentUser(c echo.Context) (model.User, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return model.User{}, auth.ErrUnauthenticated
	}
	return u, nil
}
