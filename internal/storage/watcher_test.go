package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionForPath(t *testing.T) {
	k := NewKVAdapter(t.TempDir(), "testboard", testLogger())

	tests := []struct {
		name string
		path string
		want string
		ok   bool
	}{
		{"boards blob", "testboard__boards.json", "boards", true},
		{"nested path", filepath.Join("some", "dir", "testboard__cards.json"), "cards", true},
		{"wrong prefix", "otherapp__boards.json", "", false},
		{"not json", "testboard__boards.txt", "", false},
		{"unknown collection", "testboard__widgets.json", "", false},
		{"temp file", "testboard__boards.json.tmp", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := k.collectionForPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatchKVRequiresDirectory(t *testing.T) {
	k := NewKVAdapter("", "testboard", testLogger())

	err := WatchKV(context.Background(), k, testLogger(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no blob directory")
}

func TestWatchKVReloadsExternalWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()

	watched := NewKVAdapter(dir, "testboard", testLogger())
	require.NoError(t, watched.Init(ctx))
	require.NoError(t, watched.Save(ctx, CollectionBoards, testBoard("b1", "mine")))

	changed := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- WatchKV(ctx, watched, testLogger(), func(collection string) {
			select {
			case changed <- collection:
			default:
			}
		})
	}()

	// Another process sharing the data directory writes a second board. The
	// write is repeated until the watcher picks it up, so the test does not
	// depend on the watch being registered before the first write.
	other := NewKVAdapter(dir, "testboard", testLogger())
	require.NoError(t, other.Init(ctx))

	require.Eventually(t, func() bool {
		if err := other.Save(ctx, CollectionBoards, testBoard("b2", "theirs")); err != nil {
			return false
		}
		_, err := watched.Get(ctx, CollectionBoards, "b2")
		return err == nil
	}, 5*time.Second, 100*time.Millisecond)

	select {
	case collection := <-changed:
		assert.Equal(t, CollectionBoards, collection)
	case <-time.After(time.Second):
		t.Fatal("no change callback")
	}

	// The watcher's own record is still there after the reload.
	_, err := watched.Get(ctx, CollectionBoards, "b1")
	assert.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
