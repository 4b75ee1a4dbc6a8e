package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubdetect/internal/models"
)

func TestMemorySessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Hour)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session := models.ClientSession{ID: "s1"}
	session.SignIn("tok", "7", "alice")
	require.NoError(t, store.Save(ctx, session))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Authenticated)
	assert.Equal(t, "tok", got.Token)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionStoreExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, models.ClientSession{ID: "s1"}))
	now = now.Add(2 * time.Minute)

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionThemesSurviveSignOut(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Hour)
	themes := NewSessionThemes(store)

	value, err := themes.LoadTheme(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, themes.SaveTheme(ctx, "s1", "dark"))

	session, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	session.SignIn("tok", "1", "bob")
	session.SignOut()
	require.NoError(t, store.Save(ctx, session))

	value, err = themes.LoadTheme(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "dark", value)
}
