package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       int64     `bun:",pk,nullzero" json:"id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Version  int64     `json:"version"`
	Email    string    `bun:",nullzero" json:"email"`
	Name     string    `bun:",nullzero" json:"name"`
	Roles    RoleList  `bun:"roles" json:"roles"`
	// PasswordHash is an Argon2id PHC string; users provisioned purely for
	// OIDC have none. Never exposed.
	PasswordHash *string `json:"-"`
}

// HasRole reports whether the user carries the role.
func (u *User) HasRole(role Role) bool {
	return u.Roles.Has(role)
}
