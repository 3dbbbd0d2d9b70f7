package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, root string) *stateStore {
	t.Helper()
	store, err := openStateStore(filepath.Join(t.TempDir(), "state", "state.db"), root, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStateStoreLastWorkspace(t *testing.T) {
	store := openTestStore(t, "/repo")

	ws, err := store.lastWorkspace()
	require.NoError(t, err)
	assert.Empty(t, ws)

	require.NoError(t, store.setLastWorkspace("apps/web"))
	require.NoError(t, store.setLastWorkspace("pkgs/a"))

	ws, err = store.lastWorkspace()
	require.NoError(t, err)
	assert.Equal(t, "pkgs/a", ws)
}

func TestStateStoreKeysByRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	a, err := openStateStore(path, "/repo-a", nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := openStateStore(path, "/repo-b", nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.setLastWorkspace("apps/web"))
	a.record(lifecycleEvent{workspace: "apps/web", kind: eventStarted, at: time.Now()})

	ws, err := b.lastWorkspace()
	require.NoError(t, err)
	assert.Empty(t, ws)
	events, err := b.history("", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStateStoreHistoryNewestFirst(t *testing.T) {
	store := openTestStore(t, "/repo")
	base := time.Now().Add(-time.Minute)

	store.record(lifecycleEvent{workspace: "apps/web", kind: eventStarted, detail: "pid 10", at: base})
	store.record(lifecycleEvent{workspace: "pkgs/a", kind: eventStarted, detail: "pid 11", at: base.Add(time.Second)})
	store.record(lifecycleEvent{workspace: "apps/web", kind: eventExited, detail: "exit status 1", at: base.Add(2 * time.Second)})

	events, err := store.history("", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, eventExited, events[0].kind)
	assert.Equal(t, "exit status 1", events[0].detail)
	assert.Equal(t, base.Add(2*time.Second).UnixMilli(), events[0].at.UnixMilli())

	web, err := store.history("apps/web", 10)
	require.NoError(t, err)
	require.Len(t, web, 2)
	assert.Equal(t, []string{eventExited, eventStarted}, []string{web[0].kind, web[1].kind})

	limited, err := store.history("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStateStorePruneKeepsNewest(t *testing.T) {
	store := openTestStore(t, "/repo")
	base := time.Now()
	for i := range journalRetention + 3 {
		store.record(lifecycleEvent{workspace: "w", kind: eventStarted, at: base.Add(time.Duration(i) * time.Millisecond)})
	}

	require.NoError(t, store.prune())
	events, err := store.history("", journalRetention+10)
	require.NoError(t, err)
	assert.Len(t, events, journalRetention)
	assert.Equal(t, base.Add(time.Duration(journalRetention+2)*time.Millisecond).UnixMilli(), events[0].at.UnixMilli())
}
