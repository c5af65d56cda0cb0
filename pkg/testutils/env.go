// Package testutils bootstraps real storage for package tests: a normalized
// config over a temp data dir, a migrated database, and a file store.
// Everything cleans up with the test.
package testutils

import (
	"context"
	"strings"
	"testing"

	"github.com/mbs4/mbs4/pkg/config"
	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/migrations"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/users"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// Env is a complete storage environment for a test.
type Env struct {
	Config *config.Config
	DB     *bun.DB
	Store  *filestore.Store
}

// NewEnv builds a test config over t.TempDir, opens the database, brings the
// schema up to date, and creates the file store.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	cfg := config.NewForTest()
	cfg.DataDir = t.TempDir()
	require.NoError(t, cfg.Normalize())

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	store, err := filestore.New(cfg.FilesDir)
	require.NoError(t, err)

	return &Env{Config: cfg, DB: db, Store: store}
}

// CreateUser inserts a user with the given roles, deriving the display name
// from the email's local part.
func (e *Env) CreateUser(t *testing.T, email, password string, roles ...models.Role) *models.User {
	t.Helper()

	user, err := users.NewService(e.DB).Create(context.Background(), users.CreateUserOptions{
		Email:    email,
		Name:     strings.SplitN(email, "@", 2)[0],
		Roles:    models.RoleList(roles),
		Password: &password,
	})
	require.NoError(t, err)

	return user
}
