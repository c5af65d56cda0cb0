package search

import (
	"fmt"

	"github.com/mbs4/mbs4/pkg/models"
)

// Document type discriminators.
const (
	TypeEbook  = "ebook"
	TypeAuthor = "author"
	TypeSeries = "series"
)

// Document is the indexed representation of a catalog row. The same shape
// comes back in search hits, rebuilt from stored fields.
type Document struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Authors []string `json:"authors,omitempty"`
	Series  string   `json:"series,omitempty"`
}

// EbookDocID formats the index id for an ebook row.
func EbookDocID(id int64) string {
	return fmt.Sprintf("%s:%d", TypeEbook, id)
}

// AuthorDocID formats the index id for an author row.
func AuthorDocID(id int64) string {
	return fmt.Sprintf("%s:%d", TypeAuthor, id)
}

// SeriesDocID formats the index id for a series row.
func SeriesDocID(id int64) string {
	return fmt.Sprintf("%s:%d", TypeSeries, id)
}

// EbookDocument builds the index doc for an ebook. Authors and Series
// relations must be loaded.
func EbookDocument(e *models.Ebook) Document {
	doc := Document{
		ID:    EbookDocID(e.ID),
		Type:  TypeEbook,
		Title: e.Title,
	}
	for _, a := range e.Authors {
		doc.Authors = append(doc.Authors, a.FullName())
	}
	if e.Series != nil {
		doc.Series = e.Series.Title
	}
	return doc
}

// AuthorDocument builds the index doc for an author.
func AuthorDocument(a *models.Author) Document {
	return Document{
		ID:    AuthorDocID(a.ID),
		Type:  TypeAuthor,
		Title: a.FullName(),
	}
}

// SeriesDocument builds the index doc for a series.
func SeriesDocument(s *models.Series) Document {
	return Document{
		ID:    SeriesDocID(s.ID),
		Type:  TypeSeries,
		Title: s.Title,
	}
}

// fields is what actually gets handed to bleve. Field names here must match
// the index mapping.
func (d Document) fields() map[string]interface{} {
	m := map[string]interface{}{
		"type":  d.Type,
		"title": d.Title,
	}
	if len(d.Authors) > 0 {
		m["authors"] = d.Authors
	}
	if d.Series != "" {
		m["series"] = d.Series
	}
	return m
}
