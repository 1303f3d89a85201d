// Package watch re-runs a callback when notes in the vault change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses editor save bursts into one callback.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called once per quiet period after note changes. paths lists
// the changed notes relative to the vault root, in arrival order.
type ChangeFunc func(ctx context.Context, paths []string)

// Watch starts an fsnotify watcher on root and calls onChange after note
// events settle for debounce. It blocks until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. Hidden
// directories are never watched.
func Watch(ctx context.Context, root, ext string, debounce time.Duration, logger *slog.Logger, onChange ChangeFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watch: started", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time
	var pending []string
	seen := make(map[string]struct{})

	schedule := func(rel string) {
		if _, ok := seen[rel]; !ok {
			seen[rel] = struct{}{}
			pending = append(pending, rel)
		}
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watch: stopped")
			return nil

		case <-fire:
			paths := pending
			pending = nil
			seen = make(map[string]struct{})
			timer = nil
			fire = nil
			logger.Debug("watch: change settled", slog.Int("notes", len(paths)))
			onChange(ctx, paths)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if hidden(filepath.Base(absPath)) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watch: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watch: watching new dir", slog.String("path", absPath))
					}
					continue
				}
			}

			if !strings.HasSuffix(absPath, ext) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			logger.Debug("watch: note changed", slog.String("path", rel), slog.String("op", ev.Op.String()))
			schedule(rel)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
