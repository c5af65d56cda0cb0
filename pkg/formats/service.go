package formats

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// sortColumns is the allow-list of sort fields for listing formats.
var sortColumns = map[string]string{
	"id":        "f.id",
	"name":      "f.name",
	"extension": "f.extension",
	"mime_type": "f.mime_type",
	"created":   "f.created",
	"modified":  "f.modified",
}

// Service manages ebook file formats.
type Service struct {
	db *bun.DB
}

// NewService creates a new format service.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// CreateFormatOptions are the options for creating a format.
type CreateFormatOptions struct {
	Name      string
	Extension string
	MimeType  string
}

// Create inserts a new format. Extension and mime type are each unique
// ignoring case.
func (s *Service) Create(ctx context.Context, opts CreateFormatOptions) (*models.Format, error) {
	now := time.Now()
	format := &models.Format{
		Created:   now,
		Modified:  now,
		Version:   1,
		Name:      opts.Name,
		Extension: opts.Extension,
		MimeType:  opts.MimeType,
	}

	_, err := s.db.NewInsert().Model(format).Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A format with this extension or mime type already exists.")
		}
		return nil, errors.WithStack(err)
	}

	return s.Retrieve(ctx, format.ID)
}

// Retrieve fetches a format by id.
func (s *Service) Retrieve(ctx context.Context, id int64) (*models.Format, error) {
	format := new(models.Format)
	err := s.db.
		NewSelect().
		Model(format).
		Where("f.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Format")
		}
		return nil, errors.WithStack(err)
	}
	return format, nil
}

// RetrieveByExtension fetches a format by file extension, ignoring case and a
// leading dot.
func (s *Service) RetrieveByExtension(ctx context.Context, extension string) (*models.Format, error) {
	extension = strings.TrimPrefix(extension, ".")

	format := new(models.Format)
	err := s.db.
		NewSelect().
		Model(format).
		Where("f.extension = ? COLLATE NOCASE", extension).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Format")
		}
		return nil, errors.WithStack(err)
	}
	return format, nil
}

// RetrieveByMimeType fetches a format by mime type, ignoring case and any
// parameters after the media type.
func (s *Service) RetrieveByMimeType(ctx context.Context, mimeType string) (*models.Format, error) {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.TrimSpace(mimeType)

	format := new(models.Format)
	err := s.db.
		NewSelect().
		Model(format).
		Where("f.mime_type = ? COLLATE NOCASE", mimeType).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Format")
		}
		return nil, errors.WithStack(err)
	}
	return format, nil
}

// UpdateFormatOptions are the options for updating a format. Version is the
// client-observed row version.
type UpdateFormatOptions struct {
	Version   int64
	Name      string
	Extension string
	MimeType  string
}

// Update replaces the format fields under an optimistic version check and
// returns the re-read format.
func (s *Service) Update(ctx context.Context, id int64, opts UpdateFormatOptions) (*models.Format, error) {
	q := s.db.
		NewUpdate().
		Model((*models.Format)(nil)).
		Set("modified = ?", time.Now()).
		Set("name = ?", opts.Name).
		Set("extension = ?", opts.Extension).
		Set("mime_type = ?", opts.MimeType)

	if err := database.UpdateVersioned(ctx, q, id, opts.Version, "Format"); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A format with this extension or mime type already exists.")
		}
		return nil, err
	}

	return s.Retrieve(ctx, id)
}

// Delete removes a format. Formats still referenced by sources or conversions
// cannot be deleted; the checks are explicit and share the transaction with
// the delete.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		sources, err := tx.
			NewSelect().
			Model((*models.Source)(nil)).
			Where("format_id = ?", id).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		conversions, err := tx.
			NewSelect().
			Model((*models.Conversion)(nil)).
			Where("format_id = ?", id).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		if sources+conversions > 0 {
			return errcodes.Conflict("Format is referenced by stored files and cannot be deleted.")
		}

		res, err := tx.
			NewDelete().
			Model((*models.Format)(nil)).
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
			return errcodes.NotFound("Format")
		}
		return nil
	})
}

// List returns one page of formats. The filter matches name substrings.
func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.Format], error) {
	orderBy, err := params.OrderBy(sortColumns)
	if err != nil {
		return nil, err
	}

	formats := []*models.Format{}
	q := s.db.NewSelect().Model(&formats)
	if params.Filter != "" {
		q = q.Where("f.name LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("f.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, formats), nil
}

// ListAll returns every format ordered by extension.
func (s *Service) ListAll(ctx context.Context) ([]*models.Format, error) {
	formats := []*models.Format{}
	err := s.db.
		NewSelect().
		Model(&formats).
		OrderExpr("f.extension ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return formats, nil
}

// Count returns the number of formats.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.Format)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
