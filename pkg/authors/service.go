package authors

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

// sortColumns is the allow-list of sort fields for listing authors.
var sortColumns = map[string]string{
	"id":         "a.id",
	"last_name":  "a.last_name",
	"first_name": "a.first_name",
	"created":    "a.created",
	"modified":   "a.modified",
}

// Service manages authors. The search index is optional; when nil, catalog
// mutations skip the document sync.
type Service struct {
	db    *bun.DB
	index *search.Index
}

// NewService creates a new author service.
func NewService(db *bun.DB, index *search.Index) *Service {
	return &Service{db: db, index: index}
}

// CreateAuthorOptions are the options for creating an author.
type CreateAuthorOptions struct {
	LastName    string
	FirstName   string
	Description *string
	CreatedBy   *string
}

// Create inserts a new author and indexes it.
func (s *Service) Create(ctx context.Context, opts CreateAuthorOptions) (*models.Author, error) {
	now := time.Now()
	author := &models.Author{
		Created:     now,
		Modified:    now,
		Version:     1,
		LastName:    opts.LastName,
		FirstName:   opts.FirstName,
		Description: opts.Description,
		CreatedBy:   opts.CreatedBy,
	}

	_, err := s.db.NewInsert().Model(author).Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	created, err := s.Retrieve(ctx, author.ID)
	if err != nil {
		return nil, err
	}

	s.indexDocs(ctx, search.AuthorDocument(created))
	return created, nil
}

// Retrieve fetches an author by id.
func (s *Service) Retrieve(ctx context.Context, id int64) (*models.Author, error) {
	author := new(models.Author)
	err := s.db.
		NewSelect().
		Model(author).
		Where("a.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Author")
		}
		return nil, errors.WithStack(err)
	}
	return author, nil
}

// UpdateAuthorOptions are the options for updating an author. Version is the
// client-observed row version; the remaining fields replace the stored ones.
type UpdateAuthorOptions struct {
	Version     int64
	LastName    string
	FirstName   string
	Description *string
}

// Update replaces the author fields under an optimistic version check,
// re-reads the row and refreshes its search document.
func (s *Service) Update(ctx context.Context, id int64, opts UpdateAuthorOptions) (*models.Author, error) {
	q := s.db.
		NewUpdate().
		Model((*models.Author)(nil)).
		Set("modified = ?", time.Now()).
		Set("last_name = ?", opts.LastName).
		Set("first_name = ?", emptyToNull(opts.FirstName)).
		Set("description = ?", opts.Description)

	if err := database.UpdateVersioned(ctx, q, id, opts.Version, "Author"); err != nil {
		return nil, err
	}

	updated, err := s.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}

	s.indexDocs(ctx, search.AuthorDocument(updated))
	return updated, nil
}

// Delete removes an author. Authors still credited on ebooks cannot be
// deleted; the check is explicit and shares the transaction with the delete.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		referenced, err := tx.
			NewSelect().
			Model((*models.EbookAuthor)(nil)).
			Where("author_id = ?", id).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if referenced > 0 {
			return errcodes.Conflict("Author is referenced by ebooks and cannot be deleted.")
		}

		res, err := tx.
			NewDelete().
			Model((*models.Author)(nil)).
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
			return errcodes.NotFound("Author")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.deleteDocs(ctx, search.AuthorDocID(id))
	return nil
}

// Merge moves every ebook credit from one author to another and deletes the
// source author. Ebooks already crediting the target keep a single credit.
func (s *Service) Merge(ctx context.Context, fromID, toID int64) (*models.Author, error) {
	if fromID == toID {
		return nil, errcodes.BadRequest("Cannot merge an author into itself.")
	}

	var affected []int64
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, id := range []int64{fromID, toID} {
			exists, err := tx.
				NewSelect().
				Model((*models.Author)(nil)).
				Where("id = ?", id).
				Count(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			if exists == 0 {
				return errcodes.NotFound("Author")
			}
		}

		// Remember which ebooks change hands so their search documents can
		// be refreshed after commit.
		err := tx.
			NewSelect().
			Model((*models.EbookAuthor)(nil)).
			Column("ea.ebook_id").
			Where("ea.author_id = ?", fromID).
			Scan(ctx, &affected)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewRaw(`
			UPDATE ebook_authors
			SET author_id = ?
			WHERE author_id = ?
			AND ebook_id NOT IN (SELECT ebook_id FROM ebook_authors WHERE author_id = ?)
		`, toID, fromID, toID).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		// Whatever still points at the source already credits the target.
		_, err = tx.
			NewDelete().
			Model((*models.EbookAuthor)(nil)).
			Where("author_id = ?", fromID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewDelete().
			Model((*models.Author)(nil)).
			Where("id = ?", fromID).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	s.deleteDocs(ctx, search.AuthorDocID(fromID))
	s.reindexEbooks(ctx, affected)

	return s.Retrieve(ctx, toID)
}

// List returns one page of authors. The filter matches last name substrings.
func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.Author], error) {
	orderBy, err := params.OrderBy(sortColumns)
	if err != nil {
		return nil, err
	}

	authors := []*models.Author{}
	q := s.db.NewSelect().Model(&authors)
	if params.Filter != "" {
		q = q.Where("a.last_name LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("a.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, authors), nil
}

// ListAll returns every author ordered by last then first name.
func (s *Service) ListAll(ctx context.Context) ([]*models.Author, error) {
	authors := []*models.Author{}
	err := s.db.
		NewSelect().
		Model(&authors).
		OrderExpr("a.last_name ASC").
		OrderExpr("a.first_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return authors, nil
}

// Count returns the number of authors.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.Author)(nil)).
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
		log.Err(err).Warn("failed to index author documents")
	}
}

func (s *Service) deleteDocs(ctx context.Context, ids ...string) {
	if s.index == nil {
		return
	}
	if err := s.index.Delete(ctx, ids...); err != nil {
		log := logger.FromContext(ctx)
		log.Err(err).Warn("failed to delete author documents from index")
	}
}

// reindexEbooks refreshes the search documents of the given ebooks after a
// merge rewired their author credits.
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

// emptyToNull keeps optional text columns NULL instead of '' in Set-mode
// updates, matching the nullzero insert behavior.
func emptyToNull(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
