package sources

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/naming"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// conversionSortColumns is the allow-list of sort fields for listing
// conversions.
var conversionSortColumns = map[string]string{
	"id":        "cv.id",
	"source_id": "cv.source_id",
	"location":  "cv.location",
	"created":   "cv.created",
	"modified":  "cv.modified",
}

// ConversionService manages derived artifacts of sources.
type ConversionService struct {
	db    *bun.DB
	store *filestore.Store
}

// NewConversionService creates a new conversion service.
func NewConversionService(db *bun.DB, store *filestore.Store) *ConversionService {
	return &ConversionService{db: db, store: store}
}

// CreateConversionOptions are the options for cataloguing a conversion.
// FilePath is the store path of the converted file, inside the upload
// namespace.
type CreateConversionOptions struct {
	SourceID  int64
	FormatID  int64
	FilePath  string
	BatchID   *string
	CreatedBy *string
}

// Create catalogues a converted file. The file moves from upload/ to the
// source ebook's directory under converted/ with the canonical name for the
// target format, and the row stores the converted-relative location.
func (s *ConversionService) Create(ctx context.Context, opts CreateConversionOptions) (*models.Conversion, error) {
	path, err := uploadPath(opts.FilePath)
	if err != nil {
		return nil, err
	}

	source := new(models.Source)
	err = s.db.
		NewSelect().
		Model(source).
		Relation("Ebook").
		Relation("Ebook.Authors").
		Relation("Ebook.Series").
		Where("src.id = ?", opts.SourceID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Source")
		}
		return nil, errors.WithStack(err)
	}

	format := new(models.Format)
	err = s.db.
		NewSelect().
		Model(format).
		Where("f.id = ?", opts.FormatID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Format")
		}
		return nil, errors.WithStack(err)
	}

	ebook := source.Ebook
	fileName := naming.FileName(namingAuthors(ebook.Authors), namingSeries(ebook), ebook.Title, format.Extension)
	dest, err := storepath.New(storepath.PrefixConverted.String() + "/" + ebook.BaseDir + "/" + fileName)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	final, err := s.store.Rename(ctx, path, dest)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrNotAFile) {
			return nil, errcodes.NotFound("Uploaded file")
		}
		if errors.Is(err, filestore.ErrPathConflict) {
			return nil, errcodes.PathConflict(dest.String())
		}
		return nil, err
	}

	location, err := final.WithoutPrefix(storepath.PrefixConverted)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	now := time.Now()
	conversion := &models.Conversion{
		Created:   now,
		Modified:  now,
		Version:   1,
		SourceID:  opts.SourceID,
		FormatID:  opts.FormatID,
		Location:  location.String(),
		BatchID:   opts.BatchID,
		CreatedBy: opts.CreatedBy,
	}

	_, err = s.db.NewInsert().Model(conversion).Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return s.Retrieve(ctx, conversion.ID)
}

// Retrieve fetches a conversion by id.
func (s *ConversionService) Retrieve(ctx context.Context, id int64) (*models.Conversion, error) {
	conversion := new(models.Conversion)
	err := s.db.
		NewSelect().
		Model(conversion).
		Where("cv.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Conversion")
		}
		return nil, errors.WithStack(err)
	}
	return conversion, nil
}

// UpdateConversionOptions are the options for updating a conversion. Only the
// batch marker is mutable.
type UpdateConversionOptions struct {
	Version int64
	BatchID *string
}

// Update replaces the conversion's batch id under an optimistic version
// check.
func (s *ConversionService) Update(ctx context.Context, id int64, opts UpdateConversionOptions) (*models.Conversion, error) {
	q := s.db.
		NewUpdate().
		Model((*models.Conversion)(nil)).
		Set("modified = ?", time.Now()).
		Set("batch_id = ?", opts.BatchID)

	if err := database.UpdateVersioned(ctx, q, id, opts.Version, "Conversion"); err != nil {
		return nil, err
	}

	return s.Retrieve(ctx, id)
}

// Delete removes a conversion row and its stored file. File removal is best
// effort after commit.
func (s *ConversionService) Delete(ctx context.Context, id int64) error {
	var location string
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		conversion := new(models.Conversion)
		err := tx.
			NewSelect().
			Model(conversion).
			Where("cv.id = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Conversion")
			}
			return errors.WithStack(err)
		}
		location = conversion.Location

		_, err = tx.
			NewDelete().
			Model((*models.Conversion)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}

	removeStored(ctx, s.store, storepath.PrefixConverted, location)
	return nil
}

// List returns one page of conversions. The filter matches location
// substrings.
func (s *ConversionService) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.Conversion], error) {
	orderBy, err := params.OrderBy(conversionSortColumns)
	if err != nil {
		return nil, err
	}

	conversions := []*models.Conversion{}
	q := s.db.NewSelect().Model(&conversions)
	if params.Filter != "" {
		q = q.Where("cv.location LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("cv.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, conversions), nil
}

// ListAll returns every conversion ordered by location.
func (s *ConversionService) ListAll(ctx context.Context) ([]*models.Conversion, error) {
	conversions := []*models.Conversion{}
	err := s.db.
		NewSelect().
		Model(&conversions).
		OrderExpr("cv.location ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return conversions, nil
}

// Count returns the number of conversions.
func (s *ConversionService) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.Conversion)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
