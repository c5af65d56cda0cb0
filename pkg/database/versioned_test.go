package database

import (
	"context"
	"testing"

	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateVersioned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := New(fileBackedConfig(t))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE gadgets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL DEFAULT 1,
		name TEXT NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO gadgets (name) VALUES ('widget')`)
	require.NoError(t, err)

	// Matching version succeeds and bumps.
	err = UpdateVersioned(ctx, db.NewUpdate().Table("gadgets").Set("name = ?", "sprocket"), 1, 1, "gadget")
	require.NoError(t, err)

	var name string
	var version int64
	err = db.QueryRow("SELECT name, version FROM gadgets WHERE id = 1").Scan(&name, &version)
	require.NoError(t, err)
	assert.Equal(t, "sprocket", name)
	assert.Equal(t, int64(2), version)

	// Stale version is rejected with a conflict.
	err = UpdateVersioned(ctx, db.NewUpdate().Table("gadgets").Set("name = ?", "doohickey"), 1, 1, "gadget")
	require.Error(t, err)

	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 409, ec.HTTPCode)
	assert.Equal(t, "gadget version does not match.", ec.Message)

	// Missing row behaves the same as a stale version.
	err = UpdateVersioned(ctx, db.NewUpdate().Table("gadgets").Set("name = ?", "x"), 999, 1, "gadget")
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 409, ec.HTTPCode)
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	db, err := New(fileBackedConfig(t))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE uniq_test (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO uniq_test (code) VALUES ('dup')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO uniq_test (code) VALUES ('dup')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("database is locked")))
}
