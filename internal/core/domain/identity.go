package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentityStatus represents the authentication state of an account.
type IdentityStatus string

const (
	IdentityStatusActive IdentityStatus = "ACTIVE"
	IdentityStatusBanned IdentityStatus = "BANNED"
)

// Role is the authorization role attached to an identity.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is a registered account with credentials and status.
type Identity struct {
	ID           uuid.UUID      `json:"id"`
	Identifier   string         `json:"identifier"` // username or email, unique
	PasswordHash string         `json:"-"`          // Never expose
	Status       IdentityStatus `json:"status"`
	Role         Role           `json:"role"`
	FirstName    *string        `json:"first_name,omitempty"`
	LastName     *string        `json:"last_name,omitempty"`
	Email        *string        `json:"email,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
}

// IsBanned returns true if the identity may no longer authenticate.
func (i *Identity) IsBanned() bool {
	return i.Status == IdentityStatusBanned
}

// IsAdmin returns true if the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.FirstName = cloneString(i.FirstName)
	c.LastName = cloneString(i.LastName)
	c.Email = cloneString(i.Email)
	if i.LastLoginAt != nil {
		t := *i.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// NormalizeIdentifier trims surrounding whitespace. Identifiers compare
// exactly after normalization.
func NormalizeIdentifier(identifier string) string {
	return strings.TrimSpace(identifier)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
