// Package sources manages the stored files of the catalog: sources under the
// books/ namespace and their derived conversions under converted/. Creating
// either moves a previously uploaded file onto its canonical path; deleting a
// row removes the stored file best effort.
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
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// sortColumns is the allow-list of sort fields for listing sources.
var sortColumns = map[string]string{
	"id":       "src.id",
	"ebook_id": "src.ebook_id",
	"location": "src.location",
	"size":     "src.size",
	"created":  "src.created",
	"modified": "src.modified",
}

// Service manages ebook sources.
type Service struct {
	db    *bun.DB
	store *filestore.Store
}

// NewService creates a new source service.
func NewService(db *bun.DB, store *filestore.Store) *Service {
	return &Service{db: db, store: store}
}

// CreateSourceOptions are the options for creating a source. FilePath is the
// store path of a previously uploaded file, inside the upload namespace.
type CreateSourceOptions struct {
	EbookID   int64
	FormatID  int64
	FilePath  string
	Quality   *int64
	CreatedBy *string
}

// Create catalogues an uploaded file as a source of an ebook. The file moves
// from upload/ to its canonical name under books/<base_dir>/ and the row
// stores the books-relative location. When the catalog insert fails the file
// moves back so the client can retry.
func (s *Service) Create(ctx context.Context, opts CreateSourceOptions) (*models.Source, error) {
	path, err := uploadPath(opts.FilePath)
	if err != nil {
		return nil, err
	}

	ebook := new(models.Ebook)
	err = s.db.
		NewSelect().
		Model(ebook).
		Relation("Authors").
		Relation("Series").
		Where("e.id = ?", opts.EbookID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Ebook")
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

	info, err := s.store.Describe(ctx, path)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, errcodes.NotFound("Uploaded file")
		}
		return nil, err
	}

	// Check for duplicate content before touching the file, so the upload
	// stays in place when the source already exists.
	existing, err := s.db.
		NewSelect().
		Model((*models.Source)(nil)).
		Where("ebook_id = ?", opts.EbookID).
		Where("hash = ?", info.Hash).
		Count(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if existing > 0 {
		return nil, errcodes.Conflict("A source with this content already exists for this ebook.")
	}

	fileName := naming.FileName(namingAuthors(ebook.Authors), namingSeries(ebook), ebook.Title, format.Extension)
	dest, err := storepath.New(storepath.PrefixBooks.String() + "/" + ebook.BaseDir + "/" + fileName)
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

	location, err := final.WithoutPrefix(storepath.PrefixBooks)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	now := time.Now()
	source := &models.Source{
		Created:   now,
		Modified:  now,
		Version:   1,
		EbookID:   opts.EbookID,
		FormatID:  opts.FormatID,
		Location:  location.String(),
		Size:      info.Size,
		Hash:      info.Hash,
		Quality:   opts.Quality,
		CreatedBy: opts.CreatedBy,
	}

	_, err = s.db.NewInsert().Model(source).Exec(ctx)
	if err != nil {
		s.restore(ctx, final, path)
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A source with this content already exists for this ebook.")
		}
		return nil, errors.WithStack(err)
	}

	return s.Retrieve(ctx, source.ID)
}

// Retrieve fetches a source by id.
func (s *Service) Retrieve(ctx context.Context, id int64) (*models.Source, error) {
	source := new(models.Source)
	err := s.db.
		NewSelect().
		Model(source).
		Where("src.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Source")
		}
		return nil, errors.WithStack(err)
	}
	return source, nil
}

// UpdateSourceOptions are the options for updating a source. Only quality is
// mutable; the file-derived fields are fixed at creation.
type UpdateSourceOptions struct {
	Version int64
	Quality *int64
}

// Update replaces the source's quality under an optimistic version check.
func (s *Service) Update(ctx context.Context, id int64, opts UpdateSourceOptions) (*models.Source, error) {
	q := s.db.
		NewUpdate().
		Model((*models.Source)(nil)).
		Set("modified = ?", time.Now()).
		Set("quality = ?", opts.Quality)

	if err := database.UpdateVersioned(ctx, q, id, opts.Version, "Source"); err != nil {
		return nil, err
	}

	return s.Retrieve(ctx, id)
}

// Delete removes a source, its conversions, and their stored files. Rows go
// in one transaction; file removal is best effort after commit.
func (s *Service) Delete(ctx context.Context, id int64) error {
	type removal struct {
		prefix   storepath.Prefix
		location string
	}
	var removals []removal

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		source := new(models.Source)
		err := tx.
			NewSelect().
			Model(source).
			Where("src.id = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Source")
			}
			return errors.WithStack(err)
		}

		var convLocations []string
		err = tx.
			NewSelect().
			Model((*models.Conversion)(nil)).
			Column("cv.location").
			Where("cv.source_id = ?", id).
			Scan(ctx, &convLocations)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewDelete().
			Model((*models.Conversion)(nil)).
			Where("source_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewDelete().
			Model((*models.Source)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		removals = append(removals, removal{storepath.PrefixBooks, source.Location})
		for _, loc := range convLocations {
			removals = append(removals, removal{storepath.PrefixConverted, loc})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, r := range removals {
		removeStored(ctx, s.store, r.prefix, r.location)
	}
	return nil
}

// List returns one page of sources. The filter matches location substrings.
func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.Source], error) {
	orderBy, err := params.OrderBy(sortColumns)
	if err != nil {
		return nil, err
	}

	sources := []*models.Source{}
	q := s.db.NewSelect().Model(&sources)
	if params.Filter != "" {
		q = q.Where("src.location LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("src.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, sources), nil
}

// ListAll returns every source ordered by location.
func (s *Service) ListAll(ctx context.Context) ([]*models.Source, error) {
	sources := []*models.Source{}
	err := s.db.
		NewSelect().
		Model(&sources).
		OrderExpr("src.location ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return sources, nil
}

// Count returns the number of sources.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.Source)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

// restore moves a stored file back to its upload path after a failed catalog
// insert, so the upload survives for a retry.
func (s *Service) restore(ctx context.Context, from, to storepath.Path) {
	if _, err := s.store.Rename(ctx, from, to); err != nil {
		log := logger.FromContext(ctx)
		log.Err(err).Warn("failed to restore upload after source create failed", logger.Data{"path": from.String()})
	}
}

// uploadPath validates a client-supplied file path and requires it to sit
// inside the upload namespace.
func uploadPath(raw string) (storepath.Path, error) {
	path, err := storepath.New(raw)
	if err != nil {
		return storepath.Path{}, errcodes.ValidationError("File path is not a valid store path.")
	}
	if !path.HasPrefix(storepath.PrefixUpload) {
		return storepath.Path{}, errcodes.ValidationError("File path must be inside the upload namespace.")
	}
	return path, nil
}

// removeStored deletes a stored file once its row is gone. The catalog stays
// authoritative, so failures are logged and not returned.
func removeStored(ctx context.Context, store *filestore.Store, prefix storepath.Prefix, location string) {
	path, err := storepath.New(prefix.String() + "/" + location)
	if err == nil {
		err = store.Delete(ctx, path)
	}
	if err != nil && !errors.Is(err, filestore.ErrNotFound) {
		log := logger.FromContext(ctx)
		log.Err(err).Warn("failed to remove stored file", logger.Data{"location": location})
	}
}

func namingAuthors(authors []*models.Author) []naming.Author {
	out := make([]naming.Author, 0, len(authors))
	for _, a := range authors {
		out = append(out, naming.Author{LastName: a.LastName, FirstName: a.FirstName})
	}
	return out
}

func namingSeries(e *models.Ebook) *naming.Series {
	if e.Series == nil || e.SeriesIndex == nil {
		return nil
	}
	return &naming.Series{Title: e.Series.Title, Index: *e.SeriesIndex}
}
