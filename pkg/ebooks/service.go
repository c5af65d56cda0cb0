// Package ebooks manages the catalog's central entity. An ebook row carries
// the bibliographic fields, the author and genre credits, and the canonical
// base directory its files live under. Creating or updating an ebook resolves
// every reference inside one transaction; deleting one cascades over its
// sources, conversions, and stored files explicitly.
package ebooks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/naming"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/mbs4/mbs4/pkg/search"
	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// sortColumns is the allow-list of sort fields for listing ebooks.
var sortColumns = map[string]string{
	"id":       "e.id",
	"title":    "e.title",
	"created":  "e.created",
	"modified": "e.modified",
}

// Service manages ebooks. The search index is optional; when nil, catalog
// mutations skip the document sync. The store is used for cover imports and
// for removing an ebook's files on delete.
type Service struct {
	db    *bun.DB
	index *search.Index
	store *filestore.Store
}

// NewService creates a new ebook service.
func NewService(db *bun.DB, index *search.Index, store *filestore.Store) *Service {
	return &Service{db: db, index: index, store: store}
}

// CreateEbookOptions are the options for creating an ebook. AuthorIDs keeps
// its order; the first author leads the directory and file names.
type CreateEbookOptions struct {
	Title       string
	Description *string
	SeriesID    *int64
	SeriesIndex *int64
	LanguageID  int64
	AuthorIDs   []int64
	GenreIDs    []int64
	CreatedBy   *string
}

// Create inserts a new ebook with its author and genre credits. References
// are resolved inside the transaction, the base directory is derived from the
// resolved names and fixed for the ebook's lifetime, and the search document
// goes in after commit.
func (s *Service) Create(ctx context.Context, opts CreateEbookOptions) (*models.Ebook, error) {
	if err := validateSeriesPairing(opts.SeriesID, opts.SeriesIndex); err != nil {
		return nil, err
	}

	var id int64
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		refs, err := resolveReferences(ctx, tx, opts.LanguageID, opts.SeriesID, opts.AuthorIDs, opts.GenreIDs)
		if err != nil {
			return err
		}

		now := time.Now()
		ebook := &models.Ebook{
			Created:     now,
			Modified:    now,
			Version:     1,
			Title:       opts.Title,
			Description: opts.Description,
			BaseDir:     refs.baseDir(opts.Title, opts.SeriesIndex),
			SeriesID:    opts.SeriesID,
			SeriesIndex: opts.SeriesIndex,
			LanguageID:  opts.LanguageID,
			CreatedBy:   opts.CreatedBy,
		}
		_, err = tx.NewInsert().Model(ebook).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		id = ebook.ID

		return insertCredits(ctx, tx, id, refs)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}

	s.indexDocs(ctx, search.EbookDocument(created))
	return created, nil
}

// Retrieve fetches an ebook by id with its authors, genres, series, and
// language loaded.
func (s *Service) Retrieve(ctx context.Context, id int64) (*models.Ebook, error) {
	ebook := new(models.Ebook)
	err := s.db.
		NewSelect().
		Model(ebook).
		Relation("Authors").
		Relation("Genres").
		Relation("Series").
		Relation("Language").
		Where("e.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Ebook")
		}
		return nil, errors.WithStack(err)
	}
	return ebook, nil
}

// UpdateEbookOptions are the options for updating an ebook. Version is the
// client-observed row version; the remaining fields replace the stored ones,
// including the full author and genre credit lists.
type UpdateEbookOptions struct {
	Version     int64
	Title       string
	Description *string
	SeriesID    *int64
	SeriesIndex *int64
	LanguageID  int64
	AuthorIDs   []int64
	GenreIDs    []int64
}

// Update replaces the ebook fields and rewrites its credits under an
// optimistic version check. The base directory stays as derived at creation,
// so files never move on metadata edits. The search document is refreshed
// after commit.
func (s *Service) Update(ctx context.Context, id int64, opts UpdateEbookOptions) (*models.Ebook, error) {
	if err := validateSeriesPairing(opts.SeriesID, opts.SeriesIndex); err != nil {
		return nil, err
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		refs, err := resolveReferences(ctx, tx, opts.LanguageID, opts.SeriesID, opts.AuthorIDs, opts.GenreIDs)
		if err != nil {
			return err
		}

		q := tx.
			NewUpdate().
			Model((*models.Ebook)(nil)).
			Set("modified = ?", time.Now()).
			Set("title = ?", opts.Title).
			Set("description = ?", opts.Description).
			Set("series_id = ?", opts.SeriesID).
			Set("series_index = ?", opts.SeriesIndex).
			Set("language_id = ?", opts.LanguageID)
		if err := database.UpdateVersioned(ctx, q, id, opts.Version, "Ebook"); err != nil {
			return err
		}

		// The credit rows are replaced wholesale; diffing buys nothing at
		// this scale.
		_, err = tx.
			NewDelete().
			Model((*models.EbookAuthor)(nil)).
			Where("ebook_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.
			NewDelete().
			Model((*models.EbookGenre)(nil)).
			Where("ebook_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		return insertCredits(ctx, tx, id, refs)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}

	s.indexDocs(ctx, search.EbookDocument(updated))
	return updated, nil
}

// Delete removes an ebook with everything hanging off it: credit rows,
// sources, conversions, the stored files, the cover, and the cached icon.
// Rows go in one transaction; file removal is best effort after commit.
func (s *Service) Delete(ctx context.Context, id int64) error {
	type removal struct {
		prefix   storepath.Prefix
		location string
	}
	var removals []removal

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		ebook := new(models.Ebook)
		err := tx.
			NewSelect().
			Model(ebook).
			Column("e.id", "e.cover").
			Where("e.id = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Ebook")
			}
			return errors.WithStack(err)
		}

		var sourceLocations []string
		err = tx.
			NewSelect().
			Model((*models.Source)(nil)).
			Column("src.location").
			Where("src.ebook_id = ?", id).
			Scan(ctx, &sourceLocations)
		if err != nil {
			return errors.WithStack(err)
		}

		var convLocations []string
		err = tx.
			NewSelect().
			Model((*models.Conversion)(nil)).
			Column("cv.location").
			Where("cv.source_id IN (SELECT id FROM sources WHERE ebook_id = ?)", id).
			Scan(ctx, &convLocations)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewDelete().
			Model((*models.Conversion)(nil)).
			Where("source_id IN (SELECT id FROM sources WHERE ebook_id = ?)", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.
			NewDelete().
			Model((*models.Source)(nil)).
			Where("ebook_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.
			NewDelete().
			Model((*models.EbookAuthor)(nil)).
			Where("ebook_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.
			NewDelete().
			Model((*models.EbookGenre)(nil)).
			Where("ebook_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.
			NewDelete().
			Model((*models.Ebook)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		for _, loc := range sourceLocations {
			removals = append(removals, removal{storepath.PrefixBooks, loc})
		}
		for _, loc := range convLocations {
			removals = append(removals, removal{storepath.PrefixConverted, loc})
		}
		if ebook.Cover != nil {
			removals = append(removals, removal{storepath.PrefixBooks, *ebook.Cover})
		}
		removals = append(removals, removal{storepath.PrefixIcons, fmt.Sprintf("%d.png", id)})
		return nil
	})
	if err != nil {
		return err
	}

	for _, r := range removals {
		removeStored(ctx, s.store, r.prefix, r.location)
	}
	s.deleteDocs(ctx, search.EbookDocID(id))
	return nil
}

// AttachCover moves an uploaded image into the ebook's base directory and
// records it as the cover. A previous cover file and the cached icon are
// removed so the next icon request renders the new image.
func (s *Service) AttachCover(ctx context.Context, id int64, filePath string) (*models.Ebook, error) {
	path, err := uploadPath(filePath)
	if err != nil {
		return nil, err
	}
	if path.Ext() == "" {
		return nil, errcodes.ValidationError("File path must carry an image extension.")
	}

	ebook := new(models.Ebook)
	err = s.db.
		NewSelect().
		Model(ebook).
		Column("e.id", "e.base_dir", "e.cover").
		Where("e.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Ebook")
		}
		return nil, errors.WithStack(err)
	}

	if ebook.Cover != nil {
		removeStored(ctx, s.store, storepath.PrefixBooks, *ebook.Cover)
	}

	dest, err := storepath.New(storepath.PrefixBooks.String() + "/" + ebook.BaseDir + "/cover." + path.Ext())
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

	res, err := s.db.
		NewUpdate().
		Model((*models.Ebook)(nil)).
		Set("modified = ?", time.Now()).
		Set("cover = ?", location.String()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		s.restore(ctx, final, path)
		return nil, errors.WithStack(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if rows == 0 {
		s.restore(ctx, final, path)
		return nil, errcodes.NotFound("Ebook")
	}

	removeStored(ctx, s.store, storepath.PrefixIcons, fmt.Sprintf("%d.png", id))
	return s.Retrieve(ctx, id)
}

// List returns one page of ebooks. The filter matches title substrings.
func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.Ebook], error) {
	orderBy, err := params.OrderBy(sortColumns)
	if err != nil {
		return nil, err
	}

	ebooks := []*models.Ebook{}
	q := s.db.NewSelect().Model(&ebooks)
	if params.Filter != "" {
		q = q.Where("e.title LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("e.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, ebooks), nil
}

// ListAll returns every ebook ordered by title.
func (s *Service) ListAll(ctx context.Context) ([]*models.Ebook, error) {
	ebooks := []*models.Ebook{}
	err := s.db.
		NewSelect().
		Model(&ebooks).
		OrderExpr("e.title ASC").
		OrderExpr("e.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ebooks, nil
}

// Count returns the number of ebooks.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.Ebook)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

// restore moves a cover back to its upload path after the row update failed,
// so the client can retry. Best effort.
func (s *Service) restore(ctx context.Context, from, to storepath.Path) {
	if _, err := s.store.Rename(ctx, from, to); err != nil {
		log := logger.FromContext(ctx)
		log.Err(err).Warn("failed to restore upload after cover attach failed", logger.Data{"path": to.String()})
	}
}

func (s *Service) indexDocs(ctx context.Context, docs ...search.Document) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, docs...); err != nil {
		log := logger.FromContext(ctx)
		log.Err(err).Warn("failed to index ebook documents")
	}
}

func (s *Service) deleteDocs(ctx context.Context, ids ...string) {
	if s.index == nil {
		return
	}
	if err := s.index.Delete(ctx, ids...); err != nil {
		log := logger.FromContext(ctx)
		log.Err(err).Warn("failed to delete ebook documents from index")
	}
}

// references holds the rows an ebook payload points at, resolved inside the
// write transaction. Authors keep the payload order.
type references struct {
	language *models.Language
	series   *models.Series
	authors  []*models.Author
	genres   []*models.Genre
}

// baseDir derives the canonical directory under books/ from the resolved
// names. Called at creation only.
func (r *references) baseDir(title string, seriesIndex *int64) string {
	var series *naming.Series
	if r.series != nil && seriesIndex != nil {
		series = &naming.Series{Title: r.series.Title, Index: *seriesIndex}
	}
	authors := make([]naming.Author, 0, len(r.authors))
	for _, a := range r.authors {
		authors = append(authors, naming.Author{LastName: a.LastName, FirstName: a.FirstName})
	}
	return naming.BaseDir(authors, series, title, r.language.Code)
}

// resolveReferences loads the language, series, authors, and genres an ebook
// payload references. Duplicate credit ids collapse to one. Any id that does
// not resolve fails the whole write.
func resolveReferences(ctx context.Context, db bun.IDB, languageID int64, seriesID *int64, authorIDs, genreIDs []int64) (*references, error) {
	refs := new(references)

	refs.language = new(models.Language)
	err := db.
		NewSelect().
		Model(refs.language).
		Where("l.id = ?", languageID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Language")
		}
		return nil, errors.WithStack(err)
	}

	if seriesID != nil {
		refs.series = new(models.Series)
		err := db.
			NewSelect().
			Model(refs.series).
			Where("s.id = ?", *seriesID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errcodes.NotFound("Series")
			}
			return nil, errors.WithStack(err)
		}
	}

	authorIDs = dedupe(authorIDs)
	if len(authorIDs) > 0 {
		loaded := []*models.Author{}
		err := db.
			NewSelect().
			Model(&loaded).
			Where("a.id IN (?)", bun.In(authorIDs)).
			Scan(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		byID := make(map[int64]*models.Author, len(loaded))
		for _, a := range loaded {
			byID[a.ID] = a
		}
		for _, id := range authorIDs {
			a, ok := byID[id]
			if !ok {
				return nil, errcodes.NotFound("Author")
			}
			refs.authors = append(refs.authors, a)
		}
	}

	genreIDs = dedupe(genreIDs)
	if len(genreIDs) > 0 {
		loaded := []*models.Genre{}
		err := db.
			NewSelect().
			Model(&loaded).
			Where("g.id IN (?)", bun.In(genreIDs)).
			Scan(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		byID := make(map[int64]*models.Genre, len(loaded))
		for _, g := range loaded {
			byID[g.ID] = g
		}
		for _, id := range genreIDs {
			g, ok := byID[id]
			if !ok {
				return nil, errcodes.NotFound("Genre")
			}
			refs.genres = append(refs.genres, g)
		}
	}

	return refs, nil
}

// insertCredits writes the ebook_authors and ebook_genres rows for the
// resolved references.
func insertCredits(ctx context.Context, db bun.IDB, ebookID int64, refs *references) error {
	if len(refs.authors) > 0 {
		links := make([]*models.EbookAuthor, 0, len(refs.authors))
		for _, a := range refs.authors {
			links = append(links, &models.EbookAuthor{EbookID: ebookID, AuthorID: a.ID})
		}
		if _, err := db.NewInsert().Model(&links).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
	}
	if len(refs.genres) > 0 {
		links := make([]*models.EbookGenre, 0, len(refs.genres))
		for _, g := range refs.genres {
			links = append(links, &models.EbookGenre{EbookID: ebookID, GenreID: g.ID})
		}
		if _, err := db.NewInsert().Model(&links).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// validateSeriesPairing rejects a series reference without a position and a
// position without a series.
func validateSeriesPairing(seriesID, seriesIndex *int64) error {
	if (seriesID == nil) != (seriesIndex == nil) {
		return errcodes.ValidationError("series_id and series_index must be set together.")
	}
	return nil
}

// dedupe collapses repeated ids while keeping first-occurrence order.
func dedupe(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// uploadPath validates that a client-supplied path is a store path inside the
// upload namespace.
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
