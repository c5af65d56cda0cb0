package sources

import (
	"context"
	"testing"

	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newTestConversionService(t *testing.T) (*ConversionService, *bun.DB, *filestore.Store) {
	t.Helper()

	db := newTestDB(t)
	store := newTestStore(t)
	return NewConversionService(db, store), db, store
}

// seedSource catalogues one Dune epub source through the source service and
// returns it.
func seedSource(t *testing.T, db *bun.DB, store *filestore.Store) *models.Source {
	t.Helper()
	ctx := context.Background()

	ebook := seedDuneEbook(t, db)
	upload := uploadFile(t, store, "seed.epub", []byte("seed epub bytes"))

	source, err := NewService(db, store).Create(ctx, CreateSourceOptions{
		EbookID:  ebook.ID,
		FormatID: formatID(t, db, "epub"),
		FilePath: upload.String(),
	})
	require.NoError(t, err)
	return source
}

func TestConversionServiceCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, db, store := newTestConversionService(t)
	source := seedSource(t, db, store)

	upload := uploadFile(t, store, "converted.mobi", []byte("mobi bytes"))

	conversion, err := svc.Create(ctx, CreateConversionOptions{
		SourceID:  source.ID,
		FormatID:  formatID(t, db, "mobi"),
		FilePath:  upload.String(),
		BatchID:   strptr("batch-1"),
		CreatedBy: strptr("ada@example.com"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Herbert Frank/Dune(en)/Herbert Frank - Dune.mobi", conversion.Location)
	assert.Equal(t, int64(1), conversion.Version)
	require.NotNil(t, conversion.BatchID)
	assert.Equal(t, "batch-1", *conversion.BatchID)
	require.NotNil(t, conversion.CreatedBy)
	assert.Equal(t, "ada@example.com", *conversion.CreatedBy)

	// The file moved out of upload/ into the converted namespace.
	assert.False(t, store.Exists(ctx, upload))
	assert.True(t, store.Exists(ctx, mustPath(t, "converted/"+conversion.Location)))
}

func TestConversionServiceCreateValidatesReferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, db, store := newTestConversionService(t)
	source := seedSource(t, db, store)
	mobi := formatID(t, db, "mobi")
	upload := uploadFile(t, store, "ok.mobi", []byte("ok"))

	tests := []struct {
		name string
		opts CreateConversionOptions
		code int
	}{
		{"unknown source", CreateConversionOptions{SourceID: 999, FormatID: mobi, FilePath: upload.String()}, 404},
		{"unknown format", CreateConversionOptions{SourceID: source.ID, FormatID: 999, FilePath: upload.String()}, 404},
		{"missing upload", CreateConversionOptions{SourceID: source.ID, FormatID: mobi, FilePath: "upload/nope.mobi"}, 404},
		{"outside upload", CreateConversionOptions{SourceID: source.ID, FormatID: mobi, FilePath: "converted/sneaky.mobi"}, 422},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.opts)
			require.Error(t, err)

			var ec *errcodes.Error
			require.ErrorAs(t, err, &ec)
			assert.Equal(t, tt.code, ec.HTTPCode)
		})
	}

	assert.True(t, store.Exists(ctx, upload))
}

func TestConversionServiceUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, db, store := newTestConversionService(t)
	source := seedSource(t, db, store)

	upload := uploadFile(t, store, "c.mobi", []byte("c"))
	conversion, err := svc.Create(ctx, CreateConversionOptions{
		SourceID: source.ID,
		FormatID: formatID(t, db, "mobi"),
		FilePath: upload.String(),
		BatchID:  strptr("batch-1"),
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, conversion.ID, UpdateConversionOptions{
		Version: conversion.Version,
		BatchID: strptr("batch-2"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.BatchID)
	assert.Equal(t, "batch-2", *updated.BatchID)
	assert.Equal(t, int64(2), updated.Version)

	// Omitting the batch id clears it.
	updated, err = svc.Update(ctx, conversion.ID, UpdateConversionOptions{Version: updated.Version})
	require.NoError(t, err)
	assert.Nil(t, updated.BatchID)

	_, err = svc.Update(ctx, conversion.ID, UpdateConversionOptions{Version: 1})
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 409, ec.HTTPCode)
	assert.Equal(t, "Conversion version does not match.", ec.Message)
}

func TestConversionServiceDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, db, store := newTestConversionService(t)
	source := seedSource(t, db, store)

	upload := uploadFile(t, store, "d.mobi", []byte("d"))
	conversion, err := svc.Create(ctx, CreateConversionOptions{
		SourceID: source.ID,
		FormatID: formatID(t, db, "mobi"),
		FilePath: upload.String(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, conversion.ID))

	_, err = svc.Retrieve(ctx, conversion.ID)
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)

	assert.False(t, store.Exists(ctx, mustPath(t, "converted/"+conversion.Location)))
	// The source and its file are untouched.
	assert.True(t, store.Exists(ctx, mustPath(t, "books/"+source.Location)))

	err = svc.Delete(ctx, conversion.ID)
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)
}

func TestConversionServiceListAndCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, db, store := newTestConversionService(t)
	source := seedSource(t, db, store)

	for _, ext := range []string{"mobi", "pdf"} {
		upload := uploadFile(t, store, "l."+ext, []byte("content "+ext))
		_, err := svc.Create(ctx, CreateConversionOptions{
			SourceID: source.ID,
			FormatID: formatID(t, db, ext),
			FilePath: upload.String(),
		})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, pagination.Params{Page: 1, PageSize: 10, Filter: ".pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
