package auth

import "github.com/iliyamo/items-api/internal/model"

// CanModify reports whether u may update or delete a resource recorded
// as owned by ownerID.
func CanModify(u model.User, ownerID uint64) bool {
	return u.ID == ownerID
}

// Authorize is CanModify as an error: nil when allowed, ErrForbidden
// otherwise.
func Authorize(u model.User, ownerID uint64) error {
	if !CanModify(u, ownerID) {
		return ErrForbidden
	}
	return nil
}
