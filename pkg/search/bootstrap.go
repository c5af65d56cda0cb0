package search

import (
	"context"

	"github.com/mbs4/mbs4/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

const bootstrapPageSize = 1000

// Bootstrap indexes the whole catalog, walking each table in id-ordered
// pages. It runs before the server accepts traffic, so a freshly created
// index is complete by the time anything can query it.
func Bootstrap(ctx context.Context, db *bun.DB, idx *Index) error {
	log := logger.FromContext(ctx)

	ebooks, err := bootstrapEbooks(ctx, db, idx)
	if err != nil {
		return err
	}
	authors, err := bootstrapAuthors(ctx, db, idx)
	if err != nil {
		return err
	}
	series, err := bootstrapSeries(ctx, db, idx)
	if err != nil {
		return err
	}

	log.Info("search index bootstrapped", logger.Data{
		"ebooks":  ebooks,
		"authors": authors,
		"series":  series,
	})

	return nil
}

func bootstrapEbooks(ctx context.Context, db *bun.DB, idx *Index) (int, error) {
	total := 0
	for lastID := int64(0); ; {
		var ebooks []*models.Ebook
		err := db.NewSelect().
			Model(&ebooks).
			Relation("Authors").
			Relation("Series").
			Where("e.id > ?", lastID).
			OrderExpr("e.id ASC").
			Limit(bootstrapPageSize).
			Scan(ctx)
		if err != nil {
			return total, errors.WithStack(err)
		}
		if len(ebooks) == 0 {
			return total, nil
		}

		docs := make([]Document, 0, len(ebooks))
		for _, e := range ebooks {
			docs = append(docs, EbookDocument(e))
		}
		if err := idx.Index(ctx, docs...); err != nil {
			return total, err
		}

		total += len(ebooks)
		lastID = ebooks[len(ebooks)-1].ID
		if len(ebooks) < bootstrapPageSize {
			return total, nil
		}
	}
}

func bootstrapAuthors(ctx context.Context, db *bun.DB, idx *Index) (int, error) {
	total := 0
	for lastID := int64(0); ; {
		var authors []*models.Author
		err := db.NewSelect().
			Model(&authors).
			Where("a.id > ?", lastID).
			OrderExpr("a.id ASC").
			Limit(bootstrapPageSize).
			Scan(ctx)
		if err != nil {
			return total, errors.WithStack(err)
		}
		if len(authors) == 0 {
			return total, nil
		}

		docs := make([]Document, 0, len(authors))
		for _, a := range authors {
			docs = append(docs, AuthorDocument(a))
		}
		if err := idx.Index(ctx, docs...); err != nil {
			return total, err
		}

		total += len(authors)
		lastID = authors[len(authors)-1].ID
		if len(authors) < bootstrapPageSize {
			return total, nil
		}
	}
}

func bootstrapSeries(ctx context.Context, db *bun.DB, idx *Index) (int, error) {
	total := 0
	for lastID := int64(0); ; {
		var series []*models.Series
		err := db.NewSelect().
			Model(&series).
			Where("s.id > ?", lastID).
			OrderExpr("s.id ASC").
			Limit(bootstrapPageSize).
			Scan(ctx)
		if err != nil {
			return total, errors.WithStack(err)
		}
		if len(series) == 0 {
			return total, nil
		}

		docs := make([]Document, 0, len(series))
		for _, s := range series {
			docs = append(docs, SeriesDocument(s))
		}
		if err := idx.Index(ctx, docs...); err != nil {
			return total, err
		}

		total += len(series)
		lastID = series[len(series)-1].ID
		if len(series) < bootstrapPageSize {
			return total, nil
		}
	}
}
