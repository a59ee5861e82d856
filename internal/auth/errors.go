package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by Authenticate when the username
	// is unknown or the password does not match. The two cases are not
	// distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is the umbrella for every token decode failure.
	ErrInvalidToken = errors.New("invalid token")

	// Decode failure kinds. Each wraps ErrInvalidToken, so
	// errors.Is(err, ErrInvalidToken) holds for all of them.
	ErrMalformedToken = &tokenError{kind: "malformed token"}
	ErrBadSignature   = &tokenError{kind: "bad token signature"}
	ErrExpired        = &tokenError{kind: "token expired"}

	// ErrUnauthenticated is returned by Resolve when a bearer token cannot
	// be turned into a live, active user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned by Authorize when a resolved user does not
	// own the target resource.
	ErrForbidden = errors.New("forbidden")
)

type tokenError struct{ kind string }

func (e *tokenError) Error() string { return e.kind }
func (e *tokenError) Unwrap() error { return ErrInvalidToken }
