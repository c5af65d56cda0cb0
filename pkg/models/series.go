package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Series struct {
	bun.BaseModel `bun:"table:series,alias:s"`

	ID          int64     `bun:",pk,nullzero" json:"id"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Version     int64     `json:"version"`
	Title       string    `bun:",nullzero" json:"title"`
	Description *string   `json:"description,omitempty"`
	CreatedBy   *string   `json:"created_by,omitempty"`
}
