package models

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"
)

// Role is a coarse permission level carried by users and bearer tokens.
type Role string

const (
	// RoleAdmin may manage users and delete or merge catalog entries.
	RoleAdmin Role = "admin"
	// RoleTrusted may create and modify catalog entries and upload files.
	RoleTrusted Role = "trusted"
)

// ParseRole validates a role name, ignoring case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleTrusted:
		return RoleTrusted, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ParseRoles validates a list of role names, dropping duplicates.
func ParseRoles(names []string) (RoleList, error) {
	roles := make(RoleList, 0, len(names))
	for _, name := range names {
		role, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		if !roles.Has(role) {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// RoleList is a set of roles persisted as a JSON array in a text column.
type RoleList []Role

// Has reports membership.
func (rl RoleList) Has(role Role) bool {
	for _, r := range rl {
		if r == role {
			return true
		}
	}
	return false
}

// HasAny reports whether any of the given roles is present.
func (rl RoleList) HasAny(roles ...Role) bool {
	for _, role := range roles {
		if rl.Has(role) {
			return true
		}
	}
	return false
}

// Strings renders the list for token claims.
func (rl RoleList) Strings() []string {
	out := make([]string, 0, len(rl))
	for _, r := range rl {
		out = append(out, string(r))
	}
	return out
}

// Value implements driver.Valuer.
func (rl RoleList) Value() (driver.Value, error) {
	if rl == nil {
		rl = RoleList{}
	}
	data, err := json.Marshal(rl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (rl *RoleList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*rl = RoleList{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), rl)
	case []byte:
		return json.Unmarshal(v, rl)
	}
	return fmt.Errorf("cannot scan %T into RoleList", src)
}
