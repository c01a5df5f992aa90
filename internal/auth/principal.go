package auth

import (
	"medshop/internal/apperr"
	"medshop/internal/models"
)

// Principal is the authenticated caller. Handlers pass it explicitly to every
// service call that needs an identity or a permission check.
type Principal struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

var ErrForbidden = apperr.Forbidden("you do not have permission to access this resource")

func PrincipalFromClaims(c *Claims) Principal {
	return Principal{UserID: c.UserID, Username: c.Username, Role: c.Role}
}

func PrincipalFromUser(u models.User) Principal {
	return Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// Require fails unless the principal holds role. Admins pass every check.
func (p Principal) Require(role string) error {
	if p.UserID == 0 {
		return apperr.Unauthorized("authentication required")
	}
	if p.Role == role || p.IsAdmin() {
		return nil
	}
	return ErrForbidden
}

// ID returns a pointer suitable for nullable user references.
func (p Principal) ID() *uint {
	if p.UserID == 0 {
		return nil
	}
	id := p.UserID
	return &id
}
