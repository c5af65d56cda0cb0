package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Language struct {
	bun.BaseModel `bun:"table:languages,alias:l"`

	ID       int64     `bun:",pk,nullzero" json:"id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Version  int64     `json:"version"`
	Name     string    `bun:",nullzero" json:"name"`
	// Code is the two-letter ISO 639-1 code.
	Code string `bun:",nullzero" json:"code"`
}
