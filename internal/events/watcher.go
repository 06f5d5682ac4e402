package events

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const KindArchiveRemoved = "archive.removed"

// ArchiveRemoved is published when a zip disappears from the snapshot
// directory without going through the bot.
type ArchiveRemoved struct {
	Filename string `json:"filename"`
}

type Publisher interface {
	Publish(kind string, payload any)
}

// WatchArchives reports removed or renamed zip files in dir until ctx ends.
// The catalog is left alone; stale entries are pruned on the next list.
func WatchArchives(ctx context.Context, dir string, pub Publisher) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("watching snapshot directory")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".zip") {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				name := filepath.Base(ev.Name)
				log.Warn().Str("file", name).Msg("snapshot archive removed outside the bot")
				pub.Publish(KindArchiveRemoved, ArchiveRemoved{Filename: name})
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("snapshot watcher error")
		}
	}
}
