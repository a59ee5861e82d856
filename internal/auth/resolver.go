package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/items-api/internal/model"
	"github.com/iliyamo/items-api/internal/repository"
)

// Resolver turns a bearer token back into the live user record.
//
// The token's claims are never trusted for identity data: every call
// re-reads the store, so deleting or deactivating a user locks them out
// on their next request even though their token is still well formed.
type Resolver struct {
	codec *Codec
	store CredentialStore
}

func NewResolver(codec *Codec, store CredentialStore) *Resolver {
	return &Resolver{codec: codec, store: store}
}

// Resolve decodes bearer and loads its subject. Token failures, unknown
// subjects and inactive users all yield ErrUnauthenticated; the
// underlying cause stays in the chain for logging. Store I/O errors are
// returned wrapped without ErrUnauthenticated.
func (r *Resolver) Resolve(ctx context.Context, bearer string) (model.User, error) {
	claims, err := r.decode(bearer)
	if err != nil {
		return model.User{}, err
	}
	return r.refetch(ctx, claims.Subject)
}

func (r *Resolver) decode(bearer string) (Claims, error) {
	claims, err := r.codec.Decode(bearer)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return claims, nil
}

func (r *Resolver) refetch(ctx context.Context, subject string) (model.User, error) {
	u, err := r.store.FindByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
		}
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		return model.User{}, fmt.Errorf("%w: inactive user", ErrUnauthenticated)
	}
	return u, nil
}
