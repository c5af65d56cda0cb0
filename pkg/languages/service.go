package languages

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// sortColumns is the allow-list of sort fields for listing languages.
var sortColumns = map[string]string{
	"id":       "l.id",
	"name":     "l.name",
	"code":     "l.code",
	"created":  "l.created",
	"modified": "l.modified",
}

// Service manages languages.
type Service struct {
	db *bun.DB
}

// NewService creates a new language service.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// CreateLanguageOptions are the options for creating a language.
type CreateLanguageOptions struct {
	Name string
	Code string
}

// Create inserts a new language. Codes are unique ignoring case.
func (s *Service) Create(ctx context.Context, opts CreateLanguageOptions) (*models.Language, error) {
	now := time.Now()
	language := &models.Language{
		Created:  now,
		Modified: now,
		Version:  1,
		Name:     opts.Name,
		Code:     opts.Code,
	}

	_, err := s.db.NewInsert().Model(language).Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A language with this code already exists.")
		}
		return nil, errors.WithStack(err)
	}

	return s.Retrieve(ctx, language.ID)
}

// Retrieve fetches a language by id.
func (s *Service) Retrieve(ctx context.Context, id int64) (*models.Language, error) {
	language := new(models.Language)
	err := s.db.
		NewSelect().
		Model(language).
		Where("l.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Language")
		}
		return nil, errors.WithStack(err)
	}
	return language, nil
}

// UpdateLanguageOptions are the options for updating a language. Version is
// the client-observed row version.
type UpdateLanguageOptions struct {
	Version int64
	Name    string
	Code    string
}

// Update replaces name and code under an optimistic version check and returns
// the re-read language.
func (s *Service) Update(ctx context.Context, id int64, opts UpdateLanguageOptions) (*models.Language, error) {
	q := s.db.
		NewUpdate().
		Model((*models.Language)(nil)).
		Set("modified = ?", time.Now()).
		Set("name = ?", opts.Name).
		Set("code = ?", opts.Code)

	if err := database.UpdateVersioned(ctx, q, id, opts.Version, "Language"); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A language with this code already exists.")
		}
		return nil, err
	}

	return s.Retrieve(ctx, id)
}

// Delete removes a language. Languages still referenced by ebooks cannot be
// deleted; sqlite runs without foreign key enforcement here, so the check is
// explicit and shares the transaction with the delete.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		referenced, err := tx.
			NewSelect().
			Model((*models.Ebook)(nil)).
			Where("language_id = ?", id).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if referenced > 0 {
			return errcodes.Conflict("Language is referenced by ebooks and cannot be deleted.")
		}

		res, err := tx.
			NewDelete().
			Model((*models.Language)(nil)).
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
			return errcodes.NotFound("Language")
		}
		return nil
	})
}

// List returns one page of languages. The filter matches name substrings.
func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.Language], error) {
	orderBy, err := params.OrderBy(sortColumns)
	if err != nil {
		return nil, err
	}

	languages := []*models.Language{}
	q := s.db.NewSelect().Model(&languages)
	if params.Filter != "" {
		q = q.Where("l.name LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("l.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, languages), nil
}

// ListAll returns every language ordered by name. Upload clients resolve
// codes against this listing.
func (s *Service) ListAll(ctx context.Context) ([]*models.Language, error) {
	languages := []*models.Language{}
	err := s.db.
		NewSelect().
		Model(&languages).
		OrderExpr("l.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return languages, nil
}

// Count returns the number of languages.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.Language)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
