// Package watch triggers a callback when a source tree changes, batching
// bursts of filesystem events so one save does not mean five rebuilds.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/slipway-dev/slipway/pkg/constants"
)

const defaultDebounce = 500 * time.Millisecond

// relevant reports whether a change to path should trigger a rebuild:
// Swift sources, the package manifest and lockfile, and slipway.hcl.
func relevant(path string) bool {
	if filepath.Ext(path) == ".swift" {
		return true
	}
	switch filepath.Base(path) {
	case constants.FileManifest, "Package.resolved":
		return true
	}
	return false
}

// Options tunes a watch.
type Options struct {
	// Debounce is how long events must stop before the callback fires.
	Debounce time.Duration

	// IgnoreDirs are directory names skipped at any depth, in addition
	// to the defaults (.build, .git, dist).
	IgnoreDirs []string
}

// Watch blocks watching root recursively, calling fn with the batch of
// changed paths after each quiet period. It returns when ctx is done. The
// callback runs on the watch goroutine, so a slow callback naturally
// pauses rebuild triggering while events keep queueing.
func Watch(ctx context.Context, root string, opts Options, fn func(changed []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close()

	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	skip := map[string]bool{".build": true, ".git": true, "dist": true}
	for _, dir := range opts.IgnoreDirs {
		skip[dir] = true
	}

	if err = addTree(watcher, root, skip); err != nil {
		return err
	}

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if !skip[filepath.Base(event.Name)] {
						if addErr := addTree(watcher, event.Name, skip); addErr != nil {
							slog.Warn("unable to watch new directory", "path", event.Name, "error", addErr)
						}
					}
					continue
				}
			}
			if !relevant(event.Name) {
				continue
			}
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(opts.Debounce)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", watchErr)

		case <-timerC:
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			sort.Strings(changed)
			pending = map[string]bool{}
			timer = nil
			timerC = nil
			fn(changed)
		}
	}
}

func addTree(watcher *fsnotify.Watcher, root string, skip map[string]bool) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skip[d.Name()] {
			return filepath.SkipDir
		}
		if err = watcher.Add(path); err != nil {
			return fmt.Errorf("unable to watch %s: %w", path, err)
		}
		return nil
	})
}
