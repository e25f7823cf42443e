package walker

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/wsgrep/internal/debug"
)

// WatchEventKind discriminates WatchEvent.Kind.
type WatchEventKind int

const (
	WatchCreate WatchEventKind = iota
	WatchWrite
	WatchRemove
	WatchRename
)

// WatchEvent is one live-watch notification, supplementing the core
// file-walk operations with a standing watch mode (SPEC_FULL.md §5).
type WatchEvent struct {
	Path string
	Kind WatchEventKind
}

// Watch watches root and every directory that held at least one file
// at start time, emitting WatchEvent on events until ctx is canceled.
// A directory whose only entries are subdirectories is not watched.
// New directories created in a watched directory are watched as they
// appear.
func Watch(ctx context.Context, root string, exclude func(relPath string) bool, events chan<- WatchEvent) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	add := func(dir string) {
		if err := w.Add(dir); err != nil {
			debug.LogWalk("watch: failed to add %s: %v", dir, err)
		}
	}

	res, err := walkNative(ctx, Options{Root: root})
	if err != nil {
		return err
	}
	add(root)
	seenDirs := map[string]struct{}{root: {}}
	for _, m := range res.Matches {
		dir := filepath.Dir(filepath.Join(root, m.RelativePath))
		if _, ok := seenDirs[dir]; !ok {
			seenDirs[dir] = struct{}{}
			add(dir)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr == nil && exclude != nil && exclude(filepath.ToSlash(rel)) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				add(ev.Name) // harmless if ev.Name is a file, not a dir
				events <- WatchEvent{Path: ev.Name, Kind: WatchCreate}
			case ev.Op&fsnotify.Write != 0:
				events <- WatchEvent{Path: ev.Name, Kind: WatchWrite}
			case ev.Op&fsnotify.Remove != 0:
				events <- WatchEvent{Path: ev.Name, Kind: WatchRemove}
			case ev.Op&fsnotify.Rename != 0:
				events <- WatchEvent{Path: ev.Name, Kind: WatchRename}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			debug.LogWalk("watch error: %v", err)
		}
	}
}
