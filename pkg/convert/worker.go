// Package convert runs the background extraction queue. Clients submit jobs
// over HTTP, receive an operation ticket, and pick the result up from the
// event stream once the worker gets to it.
package convert

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/events"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/metadata"
	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// queueCapacity bounds the job backlog. Submissions block once it is full.
const queueCapacity = 1024

// MetadataExtractor is the extraction dependency of the worker. It is
// implemented by *metadata.Extractor.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, localPath string, extractCover bool) (*metadata.Metadata, error)
}

// ExtractMetadataJob is one queued extraction.
type ExtractMetadataJob struct {
	OperationID  string
	FilePath     storepath.Path
	ExtractCover bool
}

// OperationTicket identifies a queued job. Events about the job carry the
// same id in their operation_id field.
type OperationTicket struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
}

// ExtractMeta is the event published when an extraction job succeeds.
type ExtractMeta struct {
	OperationID string             `json:"operation_id"`
	Created     time.Time          `json:"created"`
	Success     bool               `json:"success"`
	Metadata    *metadata.Metadata `json:"metadata"`
}

// ExtractMetaError is the event published when an extraction job fails.
type ExtractMetaError struct {
	OperationID string    `json:"operation_id"`
	Created     time.Time `json:"created"`
	Success     bool      `json:"success"`
	Error       string    `json:"error"`
}

// Worker consumes extraction jobs one at a time. The extractor shells out to
// an external binary that is cheap but not usefully parallel, and a single
// consumer keeps result events ordered per queue.
type Worker struct {
	log       logger.Logger
	store     *filestore.Store
	extractor MetadataExtractor
	bus       *events.Bus

	queue          chan ExtractMetadataJob
	shutdown       chan struct{}
	doneProcessing chan struct{}
}

func NewWorker(store *filestore.Store, extractor MetadataExtractor, bus *events.Bus) *Worker {
	return &Worker{
		log:       logger.New(),
		store:     store,
		extractor: extractor,
		bus:       bus,

		queue:          make(chan ExtractMetadataJob, queueCapacity),
		shutdown:       make(chan struct{}),
		doneProcessing: make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go w.processJobs()
}

// Shutdown stops the consumer after the job in flight, if any, finishes.
// Jobs still queued are dropped.
func (w *Worker) Shutdown() {
	close(w.shutdown)
	<-w.doneProcessing
}

// Submit validates the path, mints a ticket, and queues the job. It blocks
// while the queue is full until ctx expires.
func (w *Worker) Submit(ctx context.Context, filePath string, extractCover bool) (*OperationTicket, error) {
	path, err := uploadPath(filePath)
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ticket := &OperationTicket{ID: id, Created: time.Now().UTC()}
	job := ExtractMetadataJob{OperationID: ticket.ID, FilePath: path, ExtractCover: extractCover}

	// Check shutdown first: with room in the queue a bare select could pick
	// the send case even after the worker stopped.
	select {
	case <-w.shutdown:
		return nil, errors.New("conversion worker is shut down")
	default:
	}

	select {
	case w.queue <- job:
		return ticket, nil
	case <-w.shutdown:
		return nil, errors.New("conversion worker is shut down")
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case job := <-w.queue:
			w.runJob(job)
		}
	}
}

// runJob executes one extraction and publishes the outcome. Failures of any
// kind become an error event so the submitter always hears back.
func (w *Worker) runJob(job ExtractMetadataJob) {
	log := w.log.Root(logger.Data{"operation_id": job.OperationID, "file_path": job.FilePath.String()})
	if id, err := uuid.NewRandom(); err == nil {
		log = log.ID(id.String())
	}
	ctx := log.WithContext(context.Background())

	meta, err := w.extract(ctx, job)
	if err != nil {
		log.Err(err).Error("extract metadata error")
		w.bus.Publish(ctx, ExtractMetaError{
			OperationID: job.OperationID,
			Created:     time.Now().UTC(),
			Success:     false,
			Error:       err.Error(),
		})
		return
	}

	w.bus.Publish(ctx, ExtractMeta{
		OperationID: job.OperationID,
		Created:     time.Now().UTC(),
		Success:     true,
		Metadata:    meta,
	})
}

// extract runs the extractor and imports any produced cover into the store.
// A panicking extractor is converted into an error.
func (w *Worker) extract(ctx context.Context, job ExtractMetadataJob) (meta *metadata.Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			meta = nil
			err = errors.Errorf("extractor panic: %v", r)
		}
	}()

	local := w.store.LocalPath(job.FilePath)

	meta, err = w.extractor.ExtractMetadata(ctx, local, job.ExtractCover)
	if err != nil {
		return nil, err
	}

	if meta.CoverFile != "" {
		if err := w.importCover(ctx, meta); err != nil {
			return nil, err
		}
	}

	return meta, nil
}

// importCover moves the extractor's temporary cover file into the upload
// namespace and rewrites the metadata to point at the store path.
func (w *Worker) importCover(ctx context.Context, meta *metadata.Metadata) error {
	dest, err := storepath.UploadPath(filepath.Ext(meta.CoverFile))
	if err != nil {
		removeQuietly(meta.CoverFile)
		return errors.Wrap(err, "mint cover upload path")
	}

	if _, err := w.store.ImportFile(ctx, meta.CoverFile, dest, true); err != nil {
		removeQuietly(meta.CoverFile)
		return errors.Wrap(err, "import cover")
	}

	meta.CoverFile = dest.String()
	return nil
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

func removeQuietly(localPath string) {
	_ = os.Remove(localPath)
}
