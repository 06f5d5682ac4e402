package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker(4)
	first, unsubFirst := b.Subscribe()
	second, unsubSecond := b.Subscribe()
	defer unsubSecond()
	assert.Equal(t, 2, b.Subscribers())

	b.Publish("snapshot.create", map[string]any{"status": "succeeded"})
	for _, ch := range []<-chan Event{first, second} {
		ev := <-ch
		assert.Equal(t, "snapshot.create", ev.Kind)
		assert.False(t, ev.At.IsZero())
	}

	unsubFirst()
	unsubFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	b := NewBroker(1)
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish("a", nil)
	b.Publish("b", nil)
	assert.Equal(t, "a", (<-ch).Kind)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
}

func TestWatchArchivesReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "snapshot-1.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("zip"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	b := NewBroker(4)
	ch, unsub := b.Subscribe()
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchArchives(ctx, dir, b) }()

	// the watcher registers asynchronously; keep removing fresh files until one is seen
	var ev Event
	require.Eventually(t, func() bool {
		_ = os.WriteFile(zipPath, []byte("zip"), 0644)
		_ = os.Remove(filepath.Join(dir, "notes.txt"))
		_ = os.Remove(zipPath)
		select {
		case ev = <-ch:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, KindArchiveRemoved, ev.Kind)
	assert.Equal(t, ArchiveRemoved{Filename: "snapshot-1.zip"}, ev.Payload)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchArchivesMissingDir(t *testing.T) {
	err := WatchArchives(context.Background(), filepath.Join(t.TempDir(), "missing"), NewBroker(1))
	assert.Error(t, err)
}
