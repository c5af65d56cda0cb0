package formats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/migrations"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// seededFormats is how many formats the migrations install.
const seededFormats = 10

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestServiceSeededFormats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, seededFormats, count)

	epub, err := svc.RetrieveByExtension(ctx, "epub")
	require.NoError(t, err)
	assert.Equal(t, "EPUB", epub.Name)
	assert.Equal(t, "application/epub+zip", epub.MimeType)
}

func TestServiceCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	format, err := svc.Create(ctx, CreateFormatOptions{
		Name:      "DjVu",
		Extension: "djvu",
		MimeType:  "image/vnd.djvu",
	})
	require.NoError(t, err)

	assert.NotZero(t, format.ID)
	assert.Equal(t, "DjVu", format.Name)
	assert.Equal(t, "djvu", format.Extension)
	assert.Equal(t, "image/vnd.djvu", format.MimeType)
	assert.Equal(t, int64(1), format.Version)
}

func TestServiceCreateDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	tests := []struct {
		name string
		opts CreateFormatOptions
	}{
		{"extension collides ignoring case", CreateFormatOptions{Name: "Epub again", Extension: "EPUB", MimeType: "application/x-other"}},
		{"mime type collides", CreateFormatOptions{Name: "PDF again", Extension: "pdfx", MimeType: "application/pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.opts)
			require.Error(t, err)

			var ec *errcodes.Error
			require.ErrorAs(t, err, &ec)
			assert.Equal(t, 409, ec.HTTPCode)
		})
	}
}

func TestServiceRetrieveByExtension(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	tests := []struct {
		name      string
		extension string
		want      string
		notFound  bool
	}{
		{"plain", "mobi", "Mobipocket", false},
		{"upper case", "MOBI", "Mobipocket", false},
		{"leading dot", ".cbz", "Comic Book ZIP", false},
		{"unknown", "xyz", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, err := svc.RetrieveByExtension(ctx, tt.extension)
			if tt.notFound {
				var ec *errcodes.Error
				require.ErrorAs(t, err, &ec)
				assert.Equal(t, 404, ec.HTTPCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, format.Name)
		})
	}
}

func TestServiceRetrieveByMimeType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	tests := []struct {
		name     string
		mimeType string
		want     string
		notFound bool
	}{
		{"plain", "application/pdf", "PDF", false},
		{"upper case", "APPLICATION/PDF", "PDF", false},
		{"with charset parameter", "text/plain; charset=utf-8", "Plain text", false},
		{"unknown", "application/x-mystery", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, err := svc.RetrieveByMimeType(ctx, tt.mimeType)
			if tt.notFound {
				var ec *errcodes.Error
				require.ErrorAs(t, err, &ec)
				assert.Equal(t, 404, ec.HTTPCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, format.Name)
		})
	}
}

func TestServiceUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	format, err := svc.Create(ctx, CreateFormatOptions{
		Name:      "DjVu",
		Extension: "djv",
		MimeType:  "image/x-djvu",
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, format.ID, UpdateFormatOptions{
		Version:   format.Version,
		Name:      "DjVu",
		Extension: "djvu",
		MimeType:  "image/vnd.djvu",
	})
	require.NoError(t, err)

	assert.Equal(t, "djvu", updated.Extension)
	assert.Equal(t, "image/vnd.djvu", updated.MimeType)
	assert.Equal(t, int64(2), updated.Version)

	// Stale version is rejected.
	_, err = svc.Update(ctx, format.ID, UpdateFormatOptions{
		Version:   format.Version,
		Name:      "DjVu",
		Extension: "djvu",
		MimeType:  "image/vnd.djvu",
	})
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 409, ec.HTTPCode)
	assert.Equal(t, "Format version does not match.", ec.Message)
}

func TestServiceDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	format, err := svc.Create(ctx, CreateFormatOptions{
		Name:      "Gone",
		Extension: "gon",
		MimeType:  "application/x-gone",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, format.ID))

	_, err = svc.Retrieve(ctx, format.ID)
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)

	err = svc.Delete(ctx, format.ID)
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)
}

func TestServiceDeleteReferenced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := newTestDB(t)
	svc := NewService(db)

	epub, err := svc.RetrieveByExtension(ctx, "epub")
	require.NoError(t, err)

	now := time.Now()
	source := &models.Source{
		Created:  now,
		Modified: now,
		Version:  1,
		EbookID:  1,
		FormatID: epub.ID,
		Location: "unknown/Dune(en)/Dune.epub",
		Size:     1024,
		Hash:     "deadbeef",
	}
	_, err = db.NewInsert().Model(source).Exec(ctx)
	require.NoError(t, err)

	err = svc.Delete(ctx, epub.ID)
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 409, ec.HTTPCode)
	assert.Equal(t, "Format is referenced by stored files and cannot be deleted.", ec.Message)
}

func TestServiceDeleteReferencedByConversion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := newTestDB(t)
	svc := NewService(db)

	pdf, err := svc.RetrieveByExtension(ctx, "pdf")
	require.NoError(t, err)

	now := time.Now()
	conversion := &models.Conversion{
		Created:  now,
		Modified: now,
		Version:  1,
		SourceID: 1,
		FormatID: pdf.ID,
		Location: "abc123.pdf",
	}
	_, err = db.NewInsert().Model(conversion).Exec(ctx)
	require.NoError(t, err)

	err = svc.Delete(ctx, pdf.ID)
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 409, ec.HTTPCode)
}

func TestServiceList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	page, err := svc.List(ctx, pagination.Params{Page: 1, PageSize: 4})
	require.NoError(t, err)
	assert.Equal(t, seededFormats, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Rows, 4)

	// Sorted ascending by extension.
	page, err = svc.List(ctx, pagination.Params{Page: 1, PageSize: 20, Sort: "extension"})
	require.NoError(t, err)
	require.Len(t, page.Rows, seededFormats)
	assert.Equal(t, "azw3", page.Rows[0].Extension)

	// Filter matches name substrings.
	page, err = svc.List(ctx, pagination.Params{Page: 1, PageSize: 20, Filter: "Comic"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	// Sort fields outside the allow-list are rejected.
	_, err = svc.List(ctx, pagination.Params{Page: 1, PageSize: 20, Sort: "magic"})
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 422, ec.HTTPCode)
}

func TestServiceListAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(newTestDB(t))

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, seededFormats)
	assert.Equal(t, "azw3", all[0].Extension)
	assert.Equal(t, "txt", all[len(all)-1].Extension)
}
