package files

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/migrations"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/storepath"
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

func newTestService(t *testing.T) (*Service, *bun.DB, *filestore.Store) {
	t.Helper()

	db := newTestDB(t)
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	return NewService(db, store), db, store
}

func mustPath(t *testing.T, s string) storepath.Path {
	t.Helper()
	p, err := storepath.New(s)
	require.NoError(t, err)
	return p
}

// seedEbook inserts a bare ebook row, optionally with a cover location.
func seedEbook(t *testing.T, db *bun.DB, title string, cover *string) *models.Ebook {
	t.Helper()

	now := time.Now()
	ebook := &models.Ebook{
		Created:    now,
		Modified:   now,
		Version:    1,
		Title:      title,
		BaseDir:    "unknown/" + title + "(en)",
		LanguageID: 1,
		Cover:      cover,
	}
	_, err := db.NewInsert().Model(ebook).Exec(context.Background())
	require.NoError(t, err)
	return ebook
}

// pngBytes renders a solid image of the given size.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func strptr(s string) *string {
	return &s
}

func TestServiceUploadByName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, store := newTestService(t)

	content := []byte("epub bytes")
	info, err := svc.Upload(ctx, UploadOptions{
		OriginalName: "Dune.epub",
		Body:         bytes.NewReader(content),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(info.FinalPath, "upload/"))
	assert.True(t, strings.HasSuffix(info.FinalPath, ".epub"))
	assert.Equal(t, int64(len(content)), info.Size)
	assert.NotEmpty(t, info.Hash)
	require.NotNil(t, info.OriginalName)
	assert.Equal(t, "Dune.epub", *info.OriginalName)

	// The stored bytes match what went in.
	r, err := store.LoadData(ctx, mustPath(t, info.FinalPath))
	require.NoError(t, err)
	defer r.Close()
	stored := new(bytes.Buffer)
	_, err = stored.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, content, stored.Bytes())
}

func TestServiceUploadByContentType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	info, err := svc.Upload(ctx, UploadOptions{
		ContentType: "application/pdf; charset=binary",
		Body:        strings.NewReader("pdf bytes"),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(info.FinalPath, ".pdf"))
	assert.Nil(t, info.OriginalName)
}

func TestServiceUploadBySniffing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	// No name and no declared type; only the magic bytes identify the PDF.
	info, err := svc.Upload(ctx, UploadOptions{
		Body: strings.NewReader("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(info.FinalPath, ".pdf"))
	assert.Equal(t, int64(29), info.Size)
}

func TestServiceUploadUnsupported(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Upload(ctx, UploadOptions{
		Body: bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03}),
	})
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 415, ec.HTTPCode)
}

func TestServiceMoveUpload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, store := newTestService(t)

	content := []byte("epub bytes")
	_, err := store.StoreData(ctx, mustPath(t, "upload/x.epub"), content)
	require.NoError(t, err)

	info, err := svc.MoveUpload(ctx, "upload/x.epub", "books/Herbert Frank/Dune(en)/Herbert Frank - Dune.epub")
	require.NoError(t, err)

	assert.Equal(t, "books/Herbert Frank/Dune(en)/Herbert Frank - Dune.epub", info.FinalPath)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.NotEmpty(t, info.Hash)
	assert.False(t, store.Exists(ctx, mustPath(t, "upload/x.epub")))
	assert.True(t, store.Exists(ctx, mustPath(t, info.FinalPath)))
}

func TestServiceMoveUploadErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, store := newTestService(t)

	_, err := store.StoreData(ctx, mustPath(t, "upload/x.epub"), []byte("epub bytes"))
	require.NoError(t, err)

	tests := []struct {
		name string
		from string
		to   string
		code int
	}{
		{name: "source outside upload", from: "books/x.epub", to: "books/y.epub", code: 422},
		{name: "target outside books", from: "upload/x.epub", to: "upload/y.epub", code: 422},
		{name: "invalid target", from: "upload/x.epub", to: "books/../etc/passwd", code: 422},
		{name: "missing source", from: "upload/missing.epub", to: "books/y.epub", code: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.MoveUpload(ctx, tt.from, tt.to)
			var ec *errcodes.Error
			require.ErrorAs(t, err, &ec)
			assert.Equal(t, tt.code, ec.HTTPCode)
		})
	}

	// Every rejected move leaves the upload in place.
	assert.True(t, store.Exists(ctx, mustPath(t, "upload/x.epub")))
}

func TestServiceStoredFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, store := newTestService(t)

	_, err := store.StoreData(ctx, mustPath(t, "books/a/b.epub"), []byte("epub bytes"))
	require.NoError(t, err)

	local, contentType, err := svc.StoredFile(ctx, mustPath(t, "books/a/b.epub"))
	require.NoError(t, err)
	assert.Equal(t, store.LocalPath(mustPath(t, "books/a/b.epub")), local)
	assert.Equal(t, "application/epub+zip", contentType)

	// Unknown extension falls through to content detection.
	_, err = store.StoreData(ctx, mustPath(t, "books/a/b.bin"), []byte{0x00, 0x01, 0x02})
	require.NoError(t, err)

	_, contentType, err = svc.StoredFile(ctx, mustPath(t, "books/a/b.bin"))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", contentType)

	_, _, err = svc.StoredFile(ctx, mustPath(t, "books/missing.epub"))
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)
	assert.Equal(t, "File not found.", ec.Message)
}

func TestServiceIcon(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, db, store := newTestService(t)

	cover := pngBytes(t, 300, 200)
	_, err := store.StoreData(ctx, mustPath(t, "books/unknown/Dune(en)/cover.png"), cover)
	require.NoError(t, err)
	ebook := seedEbook(t, db, "Dune", strptr("unknown/Dune(en)/cover.png"))

	local, err := svc.Icon(ctx, ebook.ID)
	require.NoError(t, err)

	f, err := os.Open(local)
	require.NoError(t, err)
	defer f.Close()
	img, format, err := image.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 85, img.Bounds().Dy())

	// The icon is cached; the cover is no longer needed to serve it.
	require.NoError(t, store.Delete(ctx, mustPath(t, "books/unknown/Dune(en)/cover.png")))
	again, err := svc.Icon(ctx, ebook.ID)
	require.NoError(t, err)
	assert.Equal(t, local, again)
	assert.True(t, store.Exists(ctx, mustPath(t, fmt.Sprintf("icons/%d.png", ebook.ID))))
}

func TestServiceIconSmallCoverKeepsSize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, db, store := newTestService(t)

	_, err := store.StoreData(ctx, mustPath(t, "books/unknown/Tiny(en)/cover.png"), pngBytes(t, 100, 50))
	require.NoError(t, err)
	ebook := seedEbook(t, db, "Tiny", strptr("unknown/Tiny(en)/cover.png"))

	local, err := svc.Icon(ctx, ebook.ID)
	require.NoError(t, err)

	f, err := os.Open(local)
	require.NoError(t, err)
	defer f.Close()
	img, _, err := image.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestServiceIconErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, db, _ := newTestService(t)

	noCover := seedEbook(t, db, "Bare", nil)
	fileless := seedEbook(t, db, "Fileless", strptr("unknown/Fileless(en)/cover.png"))

	tests := []struct {
		name string
		id   int64
		msg  string
	}{
		{name: "unknown ebook", id: 999, msg: "Ebook not found."},
		{name: "no cover", id: noCover.ID, msg: "Cover not found."},
		{name: "cover file missing", id: fileless.ID, msg: "Cover not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Icon(ctx, tt.id)
			var ec *errcodes.Error
			require.ErrorAs(t, err, &ec)
			assert.Equal(t, 404, ec.HTTPCode)
			assert.Equal(t, tt.msg, ec.Message)
		})
	}
}
