package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/items-api/internal/model"
	"github.com/iliyamo/items-api/internal/repository"
)

// CredentialStore is the read-only view of user storage the core needs.
// Implementations report a missing user as repository.ErrNotFound.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByID(ctx context.Context, id uint64) (model.User, error)
}

// Authenticator verifies username/password pairs against a CredentialStore.
type Authenticator struct {
	store  CredentialStore
	hasher Hasher
	codec  *Codec
	ttl    time.Duration

	// dummyHash is compared against on unknown usernames so a miss costs
	// about the same as a wrong password.
	dummyHash string
}

// NewAuthenticator wires an Authenticator. ttl is the lifetime of tokens
// minted by Login.
func NewAuthenticator(store CredentialStore, hasher Hasher, codec *Codec, ttl time.Duration) (*Authenticator, error) {
	dummy, err := hasher.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy hash: %w", err)
	}
	return &Authenticator{store: store, hasher: hasher, codec: codec, ttl: ttl, dummyHash: dummy}, nil
}

// Authenticate returns the stored user when password matches, and
// ErrInvalidCredentials when the user is unknown or the password is wrong.
// Store failures are returned wrapped and are not credential failures.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	u, err := a.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.hasher.Verify(password, a.dummyHash)
			return model.User{}, ErrInvalidCredentials
		}
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	if !a.hasher.Verify(password, u.PasswordHash) {
		return model.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Login authenticates and, on success, issues an access token whose
// subject is the username.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Token, error) {
	u, err := a.Authenticate(ctx, username, password)
	if err != nil {
		return Token{}, err
	}
	return a.codec.Issue(u.Username, a.ttl)
}
