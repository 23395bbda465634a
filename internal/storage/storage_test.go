// internal/storage/storage_test.go
package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/internal/database"
	"github.com/mockloc/mockloc/internal/model"
	"github.com/mockloc/mockloc/internal/storage"
	"github.com/mockloc/mockloc/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	m := database.NewManager(zerolog.Nop())
	cfg := config.StorageConfig{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")}
	require.NoError(t, m.Connect(cfg, config.DatabaseConfig{}))
	require.NoError(t, m.Setup())
	t.Cleanup(func() { _ = m.Close() })
	return m.DB
}

func TestFavorites_CRUD(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFavoriteStore(openDB(t))

	added, err := store.Add(ctx, core.Favorite{Name: " office ", Address: "Tianfu Square", Latitude: 30.6570, Longitude: 104.0659})
	require.NoError(t, err)
	assert.NotZero(t, added.ID)
	assert.Equal(t, "office", added.Name)

	_, err = store.Add(ctx, core.Favorite{Name: "office", Latitude: 1, Longitude: 1})
	require.ErrorIs(t, err, storage.ErrDuplicate)

	_, err = store.Add(ctx, core.Favorite{Name: "bad", Latitude: 100})
	require.Error(t, err)

	got, err := store.Get(ctx, "office")
	require.NoError(t, err)
	assert.InDelta(t, 30.6570, got.Latitude, 1e-9)
	assert.InDelta(t, 104.0659, got.Longitude, 1e-9)
	assert.Equal(t, "Tianfu Square", got.Address)

	require.NoError(t, store.Remove(ctx, "office"))
	_, err = store.Get(ctx, "office")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, store.Remove(ctx, "office"), storage.ErrNotFound)

	// the name is free again after removal
	_, err = store.Add(ctx, core.Favorite{Name: "office", Latitude: 1, Longitude: 1})
	require.NoError(t, err)
}

func TestFavorites_MarkUsedOrdersList(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFavoriteStore(openDB(t))

	for _, name := range []string{"a", "b", "c"} {
		_, err := store.Add(ctx, core.Favorite{Name: name, Latitude: 10, Longitude: 20})
		require.NoError(t, err)
	}
	require.NoError(t, store.MarkUsed(ctx, "c"))
	require.NoError(t, store.MarkUsed(ctx, "c"))
	require.NoError(t, store.MarkUsed(ctx, "b"))
	require.ErrorIs(t, store.MarkUsed(ctx, "missing"), storage.ErrNotFound)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Name)
	assert.Equal(t, uint(2), list[0].UseCount)
	assert.False(t, list[0].LastUsed.IsZero())
	assert.Equal(t, "b", list[1].Name)
	assert.Equal(t, "a", list[2].Name)
	assert.True(t, list[2].LastUsed.IsZero())
}

func sessionEvents(id string, start time.Time) []core.Event {
	return []core.Event{
		{Time: start, SessionID: id, Kind: core.EventStrategyFailed, Strategy: "privileged_fallback", Detail: "permission denied"},
		{Time: start, SessionID: id, Kind: core.EventStrategyActivated, Strategy: "anti_detection",
			Fields: map[string]string{"app": "com.example.maps", "lat": "30.572800", "lng": "104.066800"}},
		{Time: start.Add(time.Second), SessionID: id, Kind: core.EventDrift, Provider: "gps"},
		{Time: start.Add(time.Second), SessionID: id, Kind: core.EventReset, Provider: "gps"},
		{Time: start.Add(2 * time.Second), SessionID: id, Kind: core.EventTargetChanged,
			Fields: map[string]string{"lat": "31.230400", "lng": "121.473700"}},
	}
}

func TestRecorder_FlushBuildsSessionRecord(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	rec := storage.NewRecorder(db, 0, zerolog.Nop())

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, e := range sessionEvents("s1", start) {
		rec.Publish(e)
	}
	// events without a session are ignored
	rec.Publish(core.Event{Kind: core.EventStopped})
	assert.Equal(t, 5, rec.Pending())

	require.NoError(t, rec.Flush(ctx))
	assert.Zero(t, rec.Pending())

	// a later flush continues the same record
	rec.Publish(core.Event{Time: start.Add(time.Minute), SessionID: "s1", Kind: core.EventStopped, Strategy: "anti_detection"})
	require.NoError(t, rec.Flush(ctx))

	sessions, err := rec.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, "com.example.maps", s.AppID)
	assert.Equal(t, "anti_detection", s.Strategy)
	assert.Equal(t, 1, s.Resets)
	assert.Equal(t, 6, s.Events)
	assert.InDelta(t, 31.2304, s.Latitude, 1e-6)
	assert.InDelta(t, 121.4737, s.Longitude, 1e-6)
	assert.True(t, s.EndedAt.Equal(start.Add(time.Minute)))
	assert.Equal(t, map[string]string{"privileged_fallback": "permission denied"}, s.Failures)
}

func TestRecorder_SessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	rec := storage.NewRecorder(openDB(t), 0, zerolog.Nop())

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec.Publish(core.Event{Time: base, SessionID: "old", Kind: core.EventStrategyActivated, Strategy: "standard"})
	rec.Publish(core.Event{Time: base.Add(time.Hour), SessionID: "new", Kind: core.EventStrategyActivated, Strategy: "standard"})
	require.NoError(t, rec.Flush(ctx))

	sessions, err := rec.Sessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "new", sessions[0].SessionID)
}

func TestRecorder_RequeuesOnFailure(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	rec := storage.NewRecorder(db, 0, zerolog.Nop())

	require.NoError(t, db.Migrator().DropTable(&model.SessionEvent{}))

	rec.Publish(core.Event{Time: time.Now(), SessionID: "s", Kind: core.EventStopped})
	require.Error(t, rec.Flush(ctx))
	assert.Equal(t, 1, rec.Pending())

	require.NoError(t, db.AutoMigrate(&model.SessionEvent{}))
	require.NoError(t, rec.Flush(ctx))
	assert.Zero(t, rec.Pending())
}

func TestRecorder_StartAndClose(t *testing.T) {
	rec := storage.NewRecorder(openDB(t), 0, zerolog.Nop())
	rec.Start(10 * time.Millisecond)

	rec.Publish(core.Event{Time: time.Now(), SessionID: "s", Kind: core.EventStrategyActivated, Strategy: "standard"})
	require.Eventually(t, func() bool { return rec.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)

	rec.Publish(core.Event{Time: time.Now(), SessionID: "s", Kind: core.EventStopped})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rec.Close(ctx))
	assert.Zero(t, rec.Pending())
	require.NoError(t, rec.Close(ctx))
}

func TestRecorder_BoundedQueue(t *testing.T) {
	rec := storage.NewRecorder(openDB(t), 2, zerolog.Nop())
	for i := 0; i < 5; i++ {
		rec.Publish(core.Event{Time: time.Now(), SessionID: "s", Kind: core.EventDrift})
	}
	assert.Equal(t, 2, rec.Pending())
}
