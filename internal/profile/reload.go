package profile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch hot-reloads the registry when the profile file changes. Blocks
// until ctx is cancelled. A reload that fails to parse keeps the previous
// registry in place.
func (r *Registry) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}

	// Debounce: wait 500ms after the last write before reloading
	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			}

		case <-reload:
			if err := r.LoadFile(path); err != nil {
				log.Printf("[PROFILES] Reload failed, keeping previous registry: %v", err)
				continue
			}
			log.Printf("[PROFILES] Reloaded %s (%d profiles)", path, len(r.Names()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[PROFILES] Watcher error: %v", err)
		}
	}
}
