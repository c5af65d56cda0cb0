package convert

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/events"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/metadata"
	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExtractor lets each test script the extractor's behavior.
type stubExtractor struct {
	fn func(localPath string, extractCover bool) (*metadata.Metadata, error)
}

func (s *stubExtractor) ExtractMetadata(_ context.Context, localPath string, extractCover bool) (*metadata.Metadata, error) {
	return s.fn(localPath, extractCover)
}

func newTestWorker(t *testing.T, extractor MetadataExtractor) (*Worker, *filestore.Store, *events.Bus) {
	t.Helper()

	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	bus := events.NewBus()
	w := NewWorker(store, extractor, bus)
	w.Start()
	t.Cleanup(w.Shutdown)

	return w, store, bus
}

func mustPath(t *testing.T, raw string) storepath.Path {
	t.Helper()

	path, err := storepath.New(raw)
	require.NoError(t, err)
	return path
}

func seedUpload(t *testing.T, store *filestore.Store, name string, data []byte) storepath.Path {
	t.Helper()

	path := mustPath(t, "upload/"+name)
	_, err := store.StoreData(context.Background(), path, data)
	require.NoError(t, err)
	return path
}

func waitEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()

	select {
	case event := <-sub.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestWorkerExtractSuccess(t *testing.T) {
	t.Parallel()

	coverLocal := filepath.Join(t.TempDir(), "cover.jpg")
	require.NoError(t, os.WriteFile(coverLocal, []byte("jpeg bytes"), 0o600))

	var mu sync.Mutex
	var gotPath string
	var gotCover bool
	extractor := &stubExtractor{fn: func(localPath string, extractCover bool) (*metadata.Metadata, error) {
		mu.Lock()
		gotPath = localPath
		gotCover = extractCover
		mu.Unlock()
		return &metadata.Metadata{
			Title:     "The Adventures of Sherlock Holmes",
			Authors:   []metadata.Author{{LastName: "Doyle", FirstName: "Arthur Conan"}},
			Language:  "eng",
			CoverFile: coverLocal,
		}, nil
	}}

	w, store, bus := newTestWorker(t, extractor)
	upload := seedUpload(t, store, "holmes.epub", []byte("epub bytes"))
	sub := bus.Subscribe()

	ticket, err := w.Submit(context.Background(), upload.String(), true)
	require.NoError(t, err)
	require.NotEmpty(t, ticket.ID)
	assert.False(t, ticket.Created.IsZero())

	event := waitEvent(t, sub)
	assert.Equal(t, "extract_meta", event.Kind)

	payload, ok := event.Payload.(ExtractMeta)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, payload.OperationID)
	assert.True(t, payload.Success)
	assert.False(t, payload.Created.IsZero())

	require.NotNil(t, payload.Metadata)
	assert.Equal(t, "The Adventures of Sherlock Holmes", payload.Metadata.Title)
	assert.Equal(t, "eng", payload.Metadata.Language)

	// The cover moved into the upload namespace, and the metadata now points
	// at the store path instead of the extractor's temp file.
	assert.True(t, strings.HasPrefix(payload.Metadata.CoverFile, "upload/"), payload.Metadata.CoverFile)
	assert.True(t, strings.HasSuffix(payload.Metadata.CoverFile, ".jpg"), payload.Metadata.CoverFile)
	assert.True(t, store.Exists(context.Background(), mustPath(t, payload.Metadata.CoverFile)))
	_, statErr := os.Stat(coverLocal)
	assert.True(t, os.IsNotExist(statErr))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, store.LocalPath(upload), gotPath)
	assert.True(t, gotCover)
}

func TestWorkerExtractWithoutCover(t *testing.T) {
	t.Parallel()

	extractor := &stubExtractor{fn: func(string, bool) (*metadata.Metadata, error) {
		return &metadata.Metadata{Title: "Bare Title"}, nil
	}}

	w, store, bus := newTestWorker(t, extractor)
	upload := seedUpload(t, store, "bare.epub", []byte("epub bytes"))
	sub := bus.Subscribe()

	ticket, err := w.Submit(context.Background(), upload.String(), false)
	require.NoError(t, err)

	event := waitEvent(t, sub)
	payload, ok := event.Payload.(ExtractMeta)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, payload.OperationID)
	assert.Empty(t, payload.Metadata.CoverFile)
}

func TestWorkerExtractError(t *testing.T) {
	t.Parallel()

	extractor := &stubExtractor{fn: func(string, bool) (*metadata.Metadata, error) {
		return nil, errors.New("ebook-meta: unsupported format")
	}}

	w, store, bus := newTestWorker(t, extractor)
	upload := seedUpload(t, store, "broken.epub", []byte("not an epub"))
	sub := bus.Subscribe()

	ticket, err := w.Submit(context.Background(), upload.String(), true)
	require.NoError(t, err)

	event := waitEvent(t, sub)
	assert.Equal(t, "extract_meta_error", event.Kind)

	payload, ok := event.Payload.(ExtractMetaError)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, payload.OperationID)
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Error, "unsupported format")
}

func TestWorkerExtractorPanicBecomesError(t *testing.T) {
	t.Parallel()

	var calls int
	var mu sync.Mutex
	extractor := &stubExtractor{fn: func(string, bool) (*metadata.Metadata, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			panic("ebook-meta wrote garbage")
		}
		return &metadata.Metadata{Title: "Second Try"}, nil
	}}

	w, store, bus := newTestWorker(t, extractor)
	upload := seedUpload(t, store, "cursed.epub", []byte("epub bytes"))
	sub := bus.Subscribe()

	ticket, err := w.Submit(context.Background(), upload.String(), true)
	require.NoError(t, err)

	event := waitEvent(t, sub)
	assert.Equal(t, "extract_meta_error", event.Kind)
	payload, ok := event.Payload.(ExtractMetaError)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, payload.OperationID)
	assert.Contains(t, payload.Error, "extractor panic")

	// The consumer survives the panic and keeps serving jobs.
	second, err := w.Submit(context.Background(), upload.String(), true)
	require.NoError(t, err)

	event = waitEvent(t, sub)
	assert.Equal(t, "extract_meta", event.Kind)
	success, ok := event.Payload.(ExtractMeta)
	require.True(t, ok)
	assert.Equal(t, second.ID, success.OperationID)
	assert.Equal(t, "Second Try", success.Metadata.Title)
}

func TestWorkerCoverImportFailure(t *testing.T) {
	t.Parallel()

	extractor := &stubExtractor{fn: func(string, bool) (*metadata.Metadata, error) {
		return &metadata.Metadata{
			Title:     "Ghost Cover",
			CoverFile: filepath.Join(os.TempDir(), "does-not-exist-anymore.jpg"),
		}, nil
	}}

	w, store, bus := newTestWorker(t, extractor)
	upload := seedUpload(t, store, "ghost.epub", []byte("epub bytes"))
	sub := bus.Subscribe()

	ticket, err := w.Submit(context.Background(), upload.String(), true)
	require.NoError(t, err)

	event := waitEvent(t, sub)
	assert.Equal(t, "extract_meta_error", event.Kind)
	payload, ok := event.Payload.(ExtractMetaError)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, payload.OperationID)
	assert.Contains(t, payload.Error, "import cover")
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	extractor := &stubExtractor{fn: func(string, bool) (*metadata.Metadata, error) {
		t.Fatal("extractor must not run for rejected submissions")
		return nil, nil
	}}
	w, _, _ := newTestWorker(t, extractor)

	tests := []struct {
		name     string
		filePath string
		message  string
	}{
		{
			name:     "traversal",
			filePath: "../etc/passwd",
			message:  "File path is not a valid store path.",
		},
		{
			name:     "unknown namespace",
			filePath: "attic/file.epub",
			message:  "File path is not a valid store path.",
		},
		{
			name:     "wrong namespace",
			filePath: "books/Doyle Arthur/holmes.epub",
			message:  "File path must be inside the upload namespace.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Submit(context.Background(), tt.filePath, true)
			var ec *errcodes.Error
			require.ErrorAs(t, err, &ec)
			assert.Equal(t, http.StatusUnprocessableEntity, ec.HTTPCode)
			assert.Equal(t, tt.message, ec.Message)
		})
	}
}

func TestSubmitBackpressure(t *testing.T) {
	t.Parallel()

	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	// No Start: nothing drains the queue, so it fills to capacity.
	w := NewWorker(store, &stubExtractor{}, events.NewBus())

	for i := 0; i < queueCapacity; i++ {
		_, err := w.Submit(context.Background(), "upload/full.epub", true)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = w.Submit(ctx, "upload/overflow.epub", true)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitAfterShutdown(t *testing.T) {
	t.Parallel()

	extractor := &stubExtractor{fn: func(string, bool) (*metadata.Metadata, error) {
		return &metadata.Metadata{Title: "Last Job"}, nil
	}}

	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	bus := events.NewBus()

	w := NewWorker(store, extractor, bus)
	w.Start()

	upload := seedUpload(t, store, "last.epub", []byte("epub bytes"))
	sub := bus.Subscribe()

	_, err = w.Submit(context.Background(), upload.String(), true)
	require.NoError(t, err)
	waitEvent(t, sub)

	w.Shutdown()

	_, err = w.Submit(context.Background(), upload.String(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shut down")
}
