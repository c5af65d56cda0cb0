package genres

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

// sortColumns is the allow-list of sort fields for listing genres.
var sortColumns = map[string]string{
	"id":       "g.id",
	"name":     "g.name",
	"created":  "g.created",
	"modified": "g.modified",
}

// Service manages genres.
type Service struct {
	db *bun.DB
}

// NewService creates a new genre service.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// CreateGenreOptions are the options for creating a genre.
type CreateGenreOptions struct {
	Name string
}

// Create inserts a new genre. Names are unique ignoring case.
func (s *Service) Create(ctx context.Context, opts CreateGenreOptions) (*models.Genre, error) {
	now := time.Now()
	genre := &models.Genre{
		Created:  now,
		Modified: now,
		Version:  1,
		Name:     opts.Name,
	}

	_, err := s.db.NewInsert().Model(genre).Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A genre with this name already exists.")
		}
		return nil, errors.WithStack(err)
	}

	return s.Retrieve(ctx, genre.ID)
}

// Retrieve fetches a genre by id.
func (s *Service) Retrieve(ctx context.Context, id int64) (*models.Genre, error) {
	genre := new(models.Genre)
	err := s.db.
		NewSelect().
		Model(genre).
		Where("g.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Genre")
		}
		return nil, errors.WithStack(err)
	}
	return genre, nil
}

// UpdateGenreOptions are the options for updating a genre. Version is the
// client-observed row version.
type UpdateGenreOptions struct {
	Version int64
	Name    string
}

// Update renames a genre under an optimistic version check and returns the
// re-read genre.
func (s *Service) Update(ctx context.Context, id int64, opts UpdateGenreOptions) (*models.Genre, error) {
	q := s.db.
		NewUpdate().
		Model((*models.Genre)(nil)).
		Set("modified = ?", time.Now()).
		Set("name = ?", opts.Name)

	if err := database.UpdateVersioned(ctx, q, id, opts.Version, "Genre"); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A genre with this name already exists.")
		}
		return nil, err
	}

	return s.Retrieve(ctx, id)
}

// Delete removes a genre. Ebooks tagged with it simply lose the tag, so the
// join rows go first, in the same transaction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewDelete().
			Model((*models.EbookGenre)(nil)).
			Where("genre_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		res, err := tx.
			NewDelete().
			Model((*models.Genre)(nil)).
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
			return errcodes.NotFound("Genre")
		}
		return nil
	})
}

// List returns one page of genres. The filter matches name substrings.
func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.Genre], error) {
	orderBy, err := params.OrderBy(sortColumns)
	if err != nil {
		return nil, err
	}

	genres := []*models.Genre{}
	q := s.db.NewSelect().Model(&genres)
	if params.Filter != "" {
		q = q.Where("g.name LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("g.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, genres), nil
}

// ListAll returns every genre ordered by name.
func (s *Service) ListAll(ctx context.Context) ([]*models.Genre, error) {
	genres := []*models.Genre{}
	err := s.db.
		NewSelect().
		Model(&genres).
		OrderExpr("g.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return genres, nil
}

// Count returns the number of genres.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.Genre)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
