package series

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/mbs4/mbs4/pkg/search"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// sortColumns is the allow-list of sort fields for listing series.
var sortColumns = map[string]string{
	"id":       "s.id",
	"title":    "s.title",
	"created":  "s.created",
	"modified": "s.modified",
}

// Service manages series. The search index is optional; when nil, catalog
// mutations skip the document sync.
type Service struct {
	db    *bun.DB
	index *search.Index
}

// NewService creates a new series service.
func NewService(db *bun.DB, index *search.Index) *Service {
	return &Service{db: db, index: index}
}

// CreateSeriesOptions are the options for creating a series.
type CreateSeriesOptions struct {
	Title       string
	Description *string
	CreatedBy   *string
}

// Create inserts a new series and indexes it.
func (s *Service) Create(ctx context.Context, opts CreateSeriesOptions) (*models.Series, error) {
	now := time.Now()
	series := &models.Series{
		Created:     now,
		Modified:    now,
		Version:     1,
		Title:       opts.Title,
		Description: opts.Description,
		CreatedBy:   opts.CreatedBy,
	}

	_, err := s.db.NewInsert().Model(series).Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	created, err := s.Retrieve(ctx, series.ID)
	if err != nil {
		return nil, err
	}

	s.indexDocs(ctx, search.SeriesDocument(created))
	return created, nil
}

// Retrieve fetches a series by id.
func (s *Service) Retrieve(ctx context.Context, id int64) (*models.Series, error) {
	series := new(models.Series)
	err := s.db.
		NewSelect().
		Model(series).
		Where("s.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Series")
		}
		return nil, errors.WithStack(err)
	}
	return series, nil
}

// UpdateSeriesOptions are the options for updating a series. Version is the
// client-observed row version; the remaining fields replace the stored ones.
type UpdateSeriesOptions struct {
	Version     int64
	Title       string
	Description *string
}

// Update replaces the series fields under an optimistic version check,
// re-reads the row and refreshes its search document.
func (s *Service) Update(ctx context.Context, id int64, opts UpdateSeriesOptions) (*models.Series, error) {
	q := s.db.
		NewUpdate().
		Model((*models.Series)(nil)).
		Set("modified = ?", time.Now()).
		Set("title = ?", opts.Title).
		Set("description = ?", opts.Description)

	if err := database.UpdateVersioned(ctx, q, id, opts.Version, "Series"); err != nil {
		return nil, err
	}

	updated, err := s.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}

	s.indexDocs(ctx, search.SeriesDocument(updated))
	return updated, nil
}

// Delete removes a series. Series still referenced by ebooks cannot be
// deleted; the check is explicit and shares the transaction with the delete.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		referenced, err := tx.
			NewSelect().
			Model((*models.Ebook)(nil)).
			Where("series_id = ?", id).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if referenced > 0 {
			return errcodes.Conflict("Series is referenced by ebooks and cannot be deleted.")
		}

		res, err := tx.
			NewDelete().
			Model((*models.Series)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return errors.WithStack(err)
		}
		if rows == 0 {
			return errcodes.NotFound("Series")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.deleteDocs(ctx, search.SeriesDocID(id))
	return nil
}

// Merge moves every ebook from one series to another and deletes the source
// series. Ebooks keep their index within the surviving series.
func (s *Service) Merge(ctx context.Context, fromID, toID int64) (*models.Series, error) {
	if fromID == toID {
		return nil, errcodes.BadRequest("Cannot merge a series into itself.")
	}

	var affected []int64
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, id := range []int64{fromID, toID} {
			exists, err := tx.
				NewSelect().
				Model((*models.Series)(nil)).
				Where("id = ?", id).
				Count(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			if exists == 0 {
				return errcodes.NotFound("Series")
			}
		}

		// Remember which ebooks move so their search documents can be
		// refreshed after commit.
		err := tx.
			NewSelect().
			Model((*models.Ebook)(nil)).
			Column("e.id").
			Where("e.series_id = ?", fromID).
			Scan(ctx, &affected)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewUpdate().
			Model((*models.Ebook)(nil)).
			Set("series_id = ?", toID).
			Where("series_id = ?", fromID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewDelete().
			Model((*models.Series)(nil)).
			Where("id = ?", fromID).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	s.deleteDocs(ctx, search.SeriesDocID(fromID))
	s.reindexEbooks(ctx, affected)

	return s.Retrieve(ctx, toID)
}

// List returns one page of series. The filter matches title substrings.
func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.Series], error) {
	orderBy, err := params.OrderBy(sortColumns)
	if err != nil {
		return nil, err
	}

	series := []*models.Series{}
	q := s.db.NewSelect().Model(&series)
	if params.Filter != "" {
		q = q.Where("s.title LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("s.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, series), nil
}

// ListAll returns every series ordered by title.
func (s *Service) ListAll(ctx context.Context) ([]*models.Series, error) {
	series := []*models.Series{}
	err := s.db.
		NewSelect().
		Model(&series).
		OrderExpr("s.title ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return series, nil
}

// Count returns the number of series.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.Series)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

func (s *Service) indexDocs(ctx context.Context, docs ...search.Document) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, docs...); err != nil {
		log := logger.FromContext(ctx)
		log.Err(err).Warn("failed to index series documents")
	}
}

func (s *Service) deleteDocs(ctx context.Context, ids ...string) {
	if s.index == nil {
		return
	}
	if err := s.index.Delete(ctx, ids...); err != nil {
		log := logger.FromContext(ctx)
		log.Err(err).Warn("failed to delete series documents from index")
	}
}

// reindexEbooks refreshes the search documents of the given ebooks after a
// merge moved them between series.
func (s *Service) reindexEbooks(ctx context.Context, ids []int64) {
	if s.index == nil || len(ids) == 0 {
		return
	}
	log := logger.FromContext(ctx)

	ebooks := []*models.Ebook{}
	err := s.db.
		NewSelect().
		Model(&ebooks).
		Relation("Authors").
		Relation("Series").
		Where("e.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		log.Err(err).Warn("failed to load ebooks for reindexing", logger.Data{"ebooks": len(ids)})
		return
	}

	docs := make([]search.Document, 0, len(ebooks))
	for _, e := range ebooks {
		docs = append(docs, search.EbookDocument(e))
	}
	if err := s.index.Index(ctx, docs...); err != nil {
		log.Err(err).Warn("failed to reindex ebooks after merge", logger.Data{"ebooks": len(docs)})
	}
}
