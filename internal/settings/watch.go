package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads settings whenever settings.yaml in dir changes and hands the
// result to onChange. Rapid bursts of filesystem events (editors write, then
// rename) collapse into one reload. The returned stop function releases the
// watcher.
func Watch(dir string, onChange func(*Settings)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create settings watcher: %w", err)
	}
	// Watch the directory, not the file: atomic saves replace the inode.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		var pending bool
		var last time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != settingsFile {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				pending = true
				last = time.Now()

			case <-ticker.C:
				if !pending || time.Since(last) < reloadDebounce {
					continue
				}
				pending = false
				s, err := LoadFrom(dir)
				if err != nil {
					log.Warn().Err(err).Msg("settings reload failed")
					continue
				}
				onChange(s)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("settings watcher error")
			}
		}
	}()

	return func() {
		cancel()
		watcher.Close()
	}, nil
}
