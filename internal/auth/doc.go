// Package auth holds the authentication and authorization core: bcrypt
// password hashing, HMAC JWT issuance and decoding, username/password
// authentication, bearer-token resolution to a live user, and the
// single-owner access rule applied before item mutations.
//
// A protected operation runs Resolver.Resolve first and, for update or
// delete, Authorize second; the first failure ends the request.
package auth
