package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Source is one stored file of an ebook. Location is relative to the books/
// namespace of the file store.
type Source struct {
	bun.BaseModel `bun:"table:sources,alias:src"`

	ID        int64     `bun:",pk,nullzero" json:"id"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Version   int64     `json:"version"`
	EbookID   int64     `bun:",nullzero" json:"ebook_id"`
	Ebook     *Ebook    `bun:"rel:belongs-to,join:ebook_id=id" json:"-"`
	FormatID  int64     `bun:",nullzero" json:"format_id"`
	Format    *Format   `bun:"rel:belongs-to,join:format_id=id" json:"format,omitempty"`
	Location  string    `bun:",nullzero" json:"location"`
	Size      int64     `json:"size"`
	Hash      string    `bun:",nullzero" json:"hash"`
	Quality   *int64    `json:"quality,omitempty"`
	CreatedBy *string   `json:"created_by,omitempty"`
}
