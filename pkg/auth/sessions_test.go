package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()

	store := NewMemoryStore(time.Hour)
	t.Cleanup(store.Stop)
	return store
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.LoggedIn())

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.ID, got.ID)

	unknown, err := store.Get(ctx, "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestMemoryStoreSave(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx)
	require.NoError(t, err)

	session.UserID = 42
	session.Email = "ada@example.com"
	session.OIDC = &OIDCSecrets{Provider: "corp", CSRFToken: "state"}
	require.NoError(t, store.Save(ctx, session))

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, "ada@example.com", got.Email)
	require.NotNil(t, got.OIDC)
	assert.Equal(t, "state", got.OIDC.CSRFToken)

	err = store.Save(ctx, &Session{ID: "no-such-session"})
	require.Error(t, err)
}

func TestMemoryStoreGetReturnsCopies(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx)
	require.NoError(t, err)
	session.OIDC = &OIDCSecrets{CSRFToken: "original"}
	require.NoError(t, store.Save(ctx, session))

	// Mutations on the returned session must not leak into the store until
	// they are saved.
	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	got.UserID = 99
	got.OIDC.CSRFToken = "tampered"

	fresh, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fresh.UserID)
	assert.Equal(t, "original", fresh.OIDC.CSRFToken)
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, session.ID))

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Delete(ctx, "no-such-session"))
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx)
	require.NoError(t, err)

	// Backdate the session past the idle TTL; the next Get must treat it as
	// gone.
	store.mu.Lock()
	store.sessions[session.ID].lastSeen = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	stale, err := store.Create(ctx)
	require.NoError(t, err)
	_, err = store.Create(ctx)
	require.NoError(t, err)

	store.mu.Lock()
	store.sessions[stale.ID].lastSeen = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	store.sweep(time.Now().Add(-time.Hour))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreGetRefreshesIdleTimer(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx)
	require.NoError(t, err)

	store.mu.Lock()
	store.sessions[session.ID].lastSeen = time.Now().Add(-59 * time.Minute)
	store.mu.Unlock()

	// Still inside the TTL, so the Get succeeds and pushes expiry out again.
	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	store.mu.Lock()
	lastSeen := store.sessions[session.ID].lastSeen
	store.mu.Unlock()
	assert.WithinDuration(t, time.Now(), lastSeen, time.Minute)
}
