package search

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// mappingVersion is bumped whenever the index mapping changes, which forces
// a rebuild from the catalog on startup.
const mappingVersion = "1"

const commandBuffer = 16

type opKind int

const (
	opIndex opKind = iota
	opDelete
	opReset
)

type command struct {
	op    opKind
	docs  []Document
	ids   []string
	reply chan error
}

// Index wraps a bleve index behind a single writer goroutine. All mutations
// flow through a command channel consumed by that goroutine; callers block
// on a per-command reply. Searches run concurrently against the index and
// only synchronize with Reset, which swaps the underlying bleve index.
type Index struct {
	path string

	mu  sync.RWMutex
	idx bleve.Index

	commands chan *command
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Hit is one search result.
type Hit struct {
	Score float64  `json:"score"`
	Doc   Document `json:"doc"`
}

// Open opens the index at path, creating it when missing. The returned
// created flag tells the caller a bootstrap from the catalog is needed. An
// index with a stale mapping version or one that fails to open is discarded
// and recreated, which also reports created.
func Open(path string) (*Index, bool, error) {
	log := logger.New()
	versionPath := path + ".version"

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, false, errors.WithStack(err)
	}

	var idx bleve.Index
	created := false
	exists := false
	if _, err := os.Stat(path); err == nil {
		exists = true
	}

	if exists {
		version, err := os.ReadFile(versionPath)
		if err != nil || string(version) != mappingVersion {
			log.Warn("search index mapping is stale, rebuilding", logger.Data{"path": path})
			exists = false
		}
	}

	if exists {
		var err error
		idx, err = bleve.Open(path)
		if err != nil {
			log.Err(err).Warn("failed to open search index, rebuilding", logger.Data{"path": path})
			exists = false
		}
	}

	if !exists {
		if err := os.RemoveAll(path); err != nil {
			return nil, false, errors.WithStack(err)
		}
		var err error
		idx, err = createIndex(path, versionPath)
		if err != nil {
			return nil, false, err
		}
		created = true
		log.Info("created search index", logger.Data{"path": path})
	}

	i := &Index{
		path:     path,
		idx:      idx,
		commands: make(chan *command, commandBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go i.writer()

	return i, created, nil
}

func createIndex(path, versionPath string) (bleve.Index, error) {
	indexMapping, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.New(path, indexMapping)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := os.WriteFile(versionPath, []byte(mappingVersion), 0644); err != nil {
		return nil, errors.WithStack(err)
	}
	return idx, nil
}

// Close stops the writer goroutine and releases the index.
func (i *Index) Close() error {
	i.stopOnce.Do(func() {
		close(i.stop)
	})
	<-i.done

	i.mu.Lock()
	defer i.mu.Unlock()
	return errors.WithStack(i.idx.Close())
}

// Index upserts documents. Indexing an id that already exists replaces the
// previous document.
func (i *Index) Index(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	return i.submit(ctx, &command{op: opIndex, docs: docs})
}

// Delete removes documents by id. Missing ids are not an error.
func (i *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return i.submit(ctx, &command{op: opDelete, ids: ids})
}

// Reset drops every document by recreating the index from scratch.
func (i *Index) Reset(ctx context.Context) error {
	return i.submit(ctx, &command{op: opReset})
}

// DocCount returns the number of indexed documents.
func (i *Index) DocCount() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	count, err := i.idx.DocCount()
	return count, errors.WithStack(err)
}

func (i *Index) submit(ctx context.Context, cmd *command) error {
	cmd.reply = make(chan error, 1)

	select {
	case i.commands <- cmd:
	case <-i.stop:
		return errors.New("search index is closed")
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// writer is the only goroutine that mutates the index.
func (i *Index) writer() {
	defer close(i.done)

	for {
		select {
		case <-i.stop:
			return
		case cmd := <-i.commands:
			cmd.reply <- i.apply(cmd)
		}
	}
}

func (i *Index) apply(cmd *command) error {
	switch cmd.op {
	case opIndex:
		i.mu.RLock()
		defer i.mu.RUnlock()

		batch := i.idx.NewBatch()
		for _, doc := range cmd.docs {
			// Delete first so a changed document never merges with its
			// previous version; within a batch the index op wins, which is
			// exactly the upsert we want.
			batch.Delete(doc.ID)
			if err := batch.Index(doc.ID, doc.fields()); err != nil {
				return errors.WithStack(err)
			}
		}
		return errors.WithStack(i.idx.Batch(batch))

	case opDelete:
		i.mu.RLock()
		defer i.mu.RUnlock()

		batch := i.idx.NewBatch()
		for _, id := range cmd.ids {
			batch.Delete(id)
		}
		return errors.WithStack(i.idx.Batch(batch))

	case opReset:
		i.mu.Lock()
		defer i.mu.Unlock()

		if err := i.idx.Close(); err != nil {
			return errors.WithStack(err)
		}
		if err := os.RemoveAll(i.path); err != nil {
			return errors.WithStack(err)
		}
		idx, err := createIndex(i.path, i.path+".version")
		if err != nil {
			return err
		}
		i.idx = idx
		return nil
	}

	return errors.Errorf("unknown index command %d", cmd.op)
}

// Search runs a query and returns up to limit hits, best score first with
// id as the tie-break. A query starting with '/' is a regular expression
// matched against the title field; anything else goes through the query
// string parser across all text fields.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	searchQuery, err := buildQuery(query)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	req.Fields = []string{"type", "title", "authors", "series"}

	i.mu.RLock()
	idx := i.idx
	i.mu.RUnlock()

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, match := range res.Hits {
		hit := Hit{
			Score: match.Score,
			Doc:   Document{ID: match.ID},
		}
		if t, ok := match.Fields["type"].(string); ok {
			hit.Doc.Type = t
		}
		if title, ok := match.Fields["title"].(string); ok {
			hit.Doc.Title = title
		}
		switch authors := match.Fields["authors"].(type) {
		case string:
			hit.Doc.Authors = []string{authors}
		case []interface{}:
			for _, a := range authors {
				if s, ok := a.(string); ok {
					hit.Doc.Authors = append(hit.Doc.Authors, s)
				}
			}
		}
		if series, ok := match.Fields["series"].(string); ok {
			hit.Doc.Series = series
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

func buildQuery(input string) (query.Query, error) {
	if pattern, ok := strings.CutPrefix(input, "/"); ok {
		// Terms are stored lower-cased, so match the pattern to them.
		pattern = strings.ToLower(pattern)
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, errcodes.BadRequest("invalid search expression")
		}
		q := bleve.NewRegexpQuery(pattern)
		q.SetField("title")
		return q, nil
	}

	return bleve.NewQueryStringQuery(input), nil
}
