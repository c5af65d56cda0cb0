package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Format is a known ebook file format. Extension and mime type both work as
// lookup keys when resolving uploads.
type Format struct {
	bun.BaseModel `bun:"table:formats,alias:f"`

	ID        int64     `bun:",pk,nullzero" json:"id"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Version   int64     `json:"version"`
	Name      string    `bun:",nullzero" json:"name"`
	Extension string    `bun:",nullzero" json:"extension"`
	MimeType  string    `bun:",nullzero" json:"mime_type"`
}
