package database

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mbs4/mbs4/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileBackedConfig points at a temp file database. A file rather than
// :memory: ensures pooled connections share the same database, which is
// what produces lock contention in the first place.
func fileBackedConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewForTest()
	cfg.DatabaseURL = "sqlite://" + filepath.Join(t.TempDir(), "contention.db")
	return cfg
}

// Uploads land concurrently when several clients catalog files at once, so
// parallel inserts must not surface "database is locked" to any of them.
func TestConcurrentWrites(t *testing.T) {
	t.Parallel()

	db, err := New(fileBackedConfig(t))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE ingested_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		location TEXT NOT NULL,
		hash TEXT NOT NULL UNIQUE
	)`)
	require.NoError(t, err)

	const clients = 20
	const uploadsPerClient = 50

	var wg sync.WaitGroup
	var failed atomic.Int32
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			for i := 0; i < uploadsPerClient; i++ {
				location := fmt.Sprintf("Author %d/Book %d.epub", client, i)
				hash := fmt.Sprintf("%x", sha256.Sum256([]byte(location)))
				_, err := db.Exec(
					"INSERT INTO ingested_files (location, hash) VALUES (?, ?)",
					location, hash,
				)
				if err != nil {
					failed.Add(1)
					t.Errorf("client %d upload %d: %v", client, i, err)
				}
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int32(0), failed.Load())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM ingested_files").Scan(&count))
	assert.Equal(t, clients*uploadsPerClient, count)
}

// Catalog reads (list pages, lookups) keep flowing while writers insert.
func TestConcurrentReadsDuringWrites(t *testing.T) {
	t.Parallel()

	db, err := New(fileBackedConfig(t))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE catalog_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL
	)`)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err = db.Exec("INSERT INTO catalog_rows (title) VALUES (?)", fmt.Sprintf("Seed %d", i))
		require.NoError(t, err)
	}

	const pairs = 4
	const opsPerWorker = 100

	var wg sync.WaitGroup
	var readErrs, writeErrs atomic.Int32

	for p := 0; p < pairs; p++ {
		wg.Add(2)
		go func(writer int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				_, err := db.Exec("INSERT INTO catalog_rows (title) VALUES (?)", fmt.Sprintf("Writer %d row %d", writer, i))
				if err != nil {
					writeErrs.Add(1)
				}
			}
		}(p)
		go func() {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				var count int
				if err := db.QueryRow("SELECT COUNT(*) FROM catalog_rows").Scan(&count); err != nil {
					readErrs.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), writeErrs.Load(), "writes should ride out the lock contention")
	assert.Equal(t, int32(0), readErrs.Load(), "reads should ride out the lock contention")

	var total int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM catalog_rows").Scan(&total))
	assert.Equal(t, 100+pairs*opsPerWorker, total)
}
