package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID          int64     `bun:",pk,nullzero" json:"id"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Version     int64     `json:"version"`
	LastName    string    `bun:",nullzero" json:"last_name"`
	FirstName   string    `bun:",nullzero" json:"first_name,omitempty"`
	Description *string   `json:"description,omitempty"`
	CreatedBy   *string   `json:"created_by,omitempty"`
}

// FullName renders "First Last" for display and search documents.
func (a *Author) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}
