package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Genre struct {
	bun.BaseModel `bun:"table:genres,alias:g"`

	ID       int64     `bun:",pk,nullzero" json:"id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Version  int64     `json:"version"`
	Name     string    `bun:",nullzero" json:"name"`
}
