package series

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/migrations"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/mbs4/mbs4/pkg/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.RegisterModel((*models.EbookAuthor)(nil), (*models.EbookGenre)(nil))

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func newTestService(t *testing.T) (*Service, *bun.DB) {
	t.Helper()

	idx, _, err := search.Open(filepath.Join(t.TempDir(), "mbs4-ft-idx.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		idx.Close()
	})

	db := newTestDB(t)
	return NewService(db, idx), db
}

// seedEbook inserts a bare ebook row, optionally placed in a series.
func seedEbook(t *testing.T, db *bun.DB, title string, seriesID *int64, seriesIndex int64) *models.Ebook {
	t.Helper()

	now := time.Now()
	ebook := &models.Ebook{
		Created:    now,
		Modified:   now,
		Version:    1,
		Title:      title,
		BaseDir:    "unknown/" + title + "(en)",
		LanguageID: 1,
		SeriesID:   seriesID,
	}
	if seriesID != nil {
		ebook.SeriesIndex = &seriesIndex
	}
	_, err := db.NewInsert().Model(ebook).Exec(context.Background())
	require.NoError(t, err)
	return ebook
}

// seriesHits filters search hits down to series documents.
func seriesHits(t *testing.T, svc *Service, query string) []search.Hit {
	t.Helper()

	hits, err := svc.index.Search(context.Background(), query, 10)
	require.NoError(t, err)

	var out []search.Hit
	for _, hit := range hits {
		if hit.Doc.Type == search.TypeSeries {
			out = append(out, hit)
		}
	}
	return out
}

func strptr(s string) *string {
	return &s
}

func TestServiceCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)

	series, err := svc.Create(ctx, CreateSeriesOptions{
		Title:     "Discworld",
		CreatedBy: strptr("ada@example.com"),
	})
	require.NoError(t, err)

	assert.NotZero(t, series.ID)
	assert.Equal(t, "Discworld", series.Title)
	assert.Equal(t, int64(1), series.Version)
	require.NotNil(t, series.CreatedBy)
	assert.Equal(t, "ada@example.com", *series.CreatedBy)

	// The series lands in the search index.
	hits := seriesHits(t, svc, "Discworld")
	require.Len(t, hits, 1)
	assert.Equal(t, search.SeriesDocID(series.ID), hits[0].Doc.ID)
}

func TestServiceRetrieveNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)

	_, err := svc.Retrieve(ctx, 999)
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)
	assert.Equal(t, "Series not found.", ec.Message)
}

func TestServiceUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)

	series, err := svc.Create(ctx, CreateSeriesOptions{
		Title:       "Fundation",
		Description: strptr("Keep this? No."),
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, series.ID, UpdateSeriesOptions{
		Version: series.Version,
		Title:   "Foundation",
	})
	require.NoError(t, err)

	assert.Equal(t, "Foundation", updated.Title)
	assert.Equal(t, int64(2), updated.Version)
	// Omitted description clears the stored one.
	assert.Nil(t, updated.Description)

	// The search document follows the rename.
	hits := seriesHits(t, svc, "Foundation")
	require.Len(t, hits, 1)
	assert.Equal(t, "Foundation", hits[0].Doc.Title)

	// Stale version is rejected.
	_, err = svc.Update(ctx, series.ID, UpdateSeriesOptions{
		Version: series.Version,
		Title:   "Stale",
	})
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 409, ec.HTTPCode)
	assert.Equal(t, "Series version does not match.", ec.Message)
}

func TestServiceDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)

	series, err := svc.Create(ctx, CreateSeriesOptions{Title: "Abandoned"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, series.ID))

	_, err = svc.Retrieve(ctx, series.ID)
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)

	// The search document goes with the row.
	assert.Empty(t, seriesHits(t, svc, "Abandoned"))

	err = svc.Delete(ctx, series.ID)
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)
}

func TestServiceDeleteReferenced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, db := newTestService(t)

	series, err := svc.Create(ctx, CreateSeriesOptions{Title: "Earthsea"})
	require.NoError(t, err)

	seedEbook(t, db, "A Wizard of Earthsea", &series.ID, 1)

	err = svc.Delete(ctx, series.ID)
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 409, ec.HTTPCode)
	assert.Equal(t, "Series is referenced by ebooks and cannot be deleted.", ec.Message)

	_, err = svc.Retrieve(ctx, series.ID)
	require.NoError(t, err)
}

func TestServiceMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, db := newTestService(t)

	from, err := svc.Create(ctx, CreateSeriesOptions{Title: "Dune Saga"})
	require.NoError(t, err)
	to, err := svc.Create(ctx, CreateSeriesOptions{Title: "Dune Chronicles"})
	require.NoError(t, err)

	moved := seedEbook(t, db, "Dune", &from.ID, 1)
	stayed := seedEbook(t, db, "Dune Messiah", &to.ID, 2)

	merged, err := svc.Merge(ctx, from.ID, to.ID)
	require.NoError(t, err)
	assert.Equal(t, to.ID, merged.ID)

	// The source series is gone.
	_, err = svc.Retrieve(ctx, from.ID)
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)

	// Both ebooks now sit in the surviving series, indexes untouched.
	for _, tt := range []struct {
		id    int64
		index int64
	}{
		{moved.ID, 1},
		{stayed.ID, 2},
	} {
		ebook := new(models.Ebook)
		require.NoError(t, db.NewSelect().Model(ebook).Where("e.id = ?", tt.id).Scan(ctx))
		require.NotNil(t, ebook.SeriesID)
		assert.Equal(t, to.ID, *ebook.SeriesID)
		require.NotNil(t, ebook.SeriesIndex)
		assert.Equal(t, tt.index, *ebook.SeriesIndex)
	}

	// Only the surviving series document remains.
	hits := seriesHits(t, svc, "Dune")
	require.Len(t, hits, 1)
	assert.Equal(t, search.SeriesDocID(to.ID), hits[0].Doc.ID)

	// The moved ebook's document reflects its new series.
	ebookHits, err := svc.index.Search(ctx, "Chronicles", 10)
	require.NoError(t, err)
	var found bool
	for _, hit := range ebookHits {
		if hit.Doc.Type == search.TypeEbook && hit.Doc.Title == "Dune" {
			found = true
			assert.Equal(t, "Dune Chronicles", hit.Doc.Series)
		}
	}
	assert.True(t, found)
}

func TestServiceMergeErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)

	series, err := svc.Create(ctx, CreateSeriesOptions{Title: "Solo"})
	require.NoError(t, err)

	tests := []struct {
		name string
		from int64
		to   int64
		code int
	}{
		{"into itself", series.ID, series.ID, 400},
		{"unknown source", 999, series.ID, 404},
		{"unknown target", series.ID, 999, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Merge(ctx, tt.from, tt.to)
			require.Error(t, err)

			var ec *errcodes.Error
			require.ErrorAs(t, err, &ec)
			assert.Equal(t, tt.code, ec.HTTPCode)
		})
	}
}

func TestServiceList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)

	for _, title := range []string{"Discworld", "Foundation", "Earthsea"} {
		_, err := svc.Create(ctx, CreateSeriesOptions{Title: title})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, pagination.Params{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Rows, 2)

	// Sorted descending by title.
	page, err = svc.List(ctx, pagination.Params{Page: 1, PageSize: 10, Sort: "-title"})
	require.NoError(t, err)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, "Foundation", page.Rows[0].Title)
	assert.Equal(t, "Discworld", page.Rows[2].Title)

	// Filter matches title substrings.
	page, err = svc.List(ctx, pagination.Params{Page: 1, PageSize: 10, Filter: "sea"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	// Sort fields outside the allow-list are rejected.
	_, err = svc.List(ctx, pagination.Params{Page: 1, PageSize: 10, Sort: "length"})
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 422, ec.HTTPCode)
}

func TestServiceListAllAndCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	for _, title := range []string{"Wax and Wayne", "Mistborn"} {
		_, err := svc.Create(ctx, CreateSeriesOptions{Title: title})
		require.NoError(t, err)
	}

	all, err = svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Mistborn", all[0].Title)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
