package settings

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const PollInterval = 60 * time.Second

// StartWatcher reloads the settings file when it changes on disk.
// fsnotify watches the parent directory so that atomic replaces are seen;
// a slow mtime poll runs regardless in case events are missed.
func (s *Store) StartWatcher(ctx context.Context) {
	s.startWatcher(ctx, PollInterval)
}

func (s *Store) startWatcher(ctx context.Context, poll time.Duration) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[Settings] fsnotify unavailable (%v), polling only", err)
		watcher = nil
	} else if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		log.Printf("[Settings] cannot watch %s (%v), polling only", filepath.Dir(s.path), err)
		watcher.Close()
		watcher = nil
	}

	if watcher != nil {
		go func() {
			defer watcher.Close()
			name := filepath.Clean(s.path)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-watcher.Events:
					if !ok {
						return
					}
					if filepath.Clean(ev.Name) != name {
						continue
					}
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
						continue
					}
					// let writers finish
					time.Sleep(100 * time.Millisecond)
					if changed, err := s.ReloadIfChanged(); err != nil {
						log.Printf("[Settings] reload failed: %v", err)
					} else if changed {
						log.Printf("[Settings] reloaded %s", s.path)
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[Settings] watcher error: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if changed, err := s.ReloadIfChanged(); err != nil {
					log.Printf("[Settings] poll reload failed: %v", err)
				} else if changed {
					log.Printf("[Settings] reloaded %s (poll)", s.path)
				}
			}
		}
	}()
}
