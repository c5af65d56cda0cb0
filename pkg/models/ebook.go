package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Ebook struct {
	bun.BaseModel `bun:"table:ebooks,alias:e"`

	ID          int64     `bun:",pk,nullzero" json:"id"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Version     int64     `json:"version"`
	Title       string    `bun:",nullzero" json:"title"`
	Description *string   `json:"description,omitempty"`
	// Cover is the books-relative store path of the cover image, if any.
	Cover *string `json:"cover,omitempty"`
	// BaseDir is the canonical directory under books/ derived at creation
	// and fixed for the ebook's lifetime.
	BaseDir     string    `bun:",nullzero" json:"base_dir"`
	SeriesID    *int64    `json:"series_id,omitempty"`
	Series      *Series   `bun:"rel:belongs-to,join:series_id=id" json:"series,omitempty"`
	SeriesIndex *int64    `json:"series_index,omitempty"`
	LanguageID  int64     `bun:",nullzero" json:"language_id"`
	Language    *Language `bun:"rel:belongs-to,join:language_id=id" json:"language,omitempty"`
	Authors     []*Author `bun:"m2m:ebook_authors,join:Ebook=Author" json:"authors,omitempty"`
	Genres      []*Genre  `bun:"m2m:ebook_genres,join:Ebook=Genre" json:"genres,omitempty"`
	Sources     []*Source `bun:"rel:has-many,join:id=ebook_id" json:"sources,omitempty"`
	CreatedBy   *string   `json:"created_by,omitempty"`
}

// HasSeries reports whether series and series index are both set.
func (e *Ebook) HasSeries() bool {
	return e.SeriesID != nil && e.SeriesIndex != nil
}

// EbookAuthor links ebooks to authors.
type EbookAuthor struct {
	bun.BaseModel `bun:"table:ebook_authors,alias:ea"`

	EbookID  int64   `bun:",pk" json:"ebook_id"`
	Ebook    *Ebook  `bun:"rel:belongs-to,join:ebook_id=id" json:"-"`
	AuthorID int64   `bun:",pk" json:"author_id"`
	Author   *Author `bun:"rel:belongs-to,join:author_id=id" json:"-"`
}

// EbookGenre links ebooks to genres.
type EbookGenre struct {
	bun.BaseModel `bun:"table:ebook_genres,alias:eg"`

	EbookID int64  `bun:",pk" json:"ebook_id"`
	Ebook   *Ebook `bun:"rel:belongs-to,join:ebook_id=id" json:"-"`
	GenreID int64  `bun:",pk" json:"genre_id"`
	Genre   *Genre `bun:"rel:belongs-to,join:genre_id=id" json:"-"`
}
