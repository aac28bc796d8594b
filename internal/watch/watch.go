// Package watch recursively watches project roots for code changes and
// debounces them into batched callbacks for the incremental indexer
// (spec.md §4.8).
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/amanmcp-labs/memoryd/internal/scan"
)

// Operation is the kind of filesystem change an Event represents.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Callback receives the set of project-relative paths that changed since
// the last debounced emission (spec.md §4.8 "emit the set").
type Callback func(paths []string)

// Watcher recursively watches a project root and invokes a Callback with
// debounced batches of changed paths. It shares its ignore policy with
// internal/scan so a live file event is filtered identically to how the
// initial full scan would have treated the same path.
type Watcher struct {
	root     string
	scanner  *scan.Scanner
	debounce *debouncer
	log      *slog.Logger

	fsw *fsnotify.Watcher
}

// New constructs a Watcher over root, reusing scanner's gitignore/
// .memoryignore matcher for event filtering. Start must be called to begin
// watching; events are delivered to cb only after debouncing.
func New(root string, scanner *scan.Scanner, cb Callback, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		scanner:  scanner,
		log:      log,
		fsw:      fsw,
		debounce: newDebouncer(cb),
	}, nil
}

// Start adds every non-ignored directory under root to the underlying
// fsnotify watcher and begins forwarding filtered events into the
// debouncer. It blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.debounce.run(ctx)
	go w.readFsnotify(ctx)

	<-ctx.Done()
	return w.fsw.Close()
}

func (w *Watcher) readFsnotify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		relPath = ev.Name
	}

	isDir := false
	if info, statErr := os.Stat(ev.Name); statErr == nil {
		isDir = info.IsDir()
	}

	if filepath.Base(ev.Name) == ".gitignore" {
		w.scanner.Invalidate(w.root)
	}

	if ignored, err := w.scanner.IsIgnored(w.root, relPath, isDir); err != nil || ignored {
		return
	}
	if !isDir && !scan.IsCodeFile(ev.Name) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = w.fsw.Add(ev.Name)
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return // chmod and anything else is ignored
	}

	if isDir && op != OpCreate {
		return // directory events other than new-directory creation carry no indexing meaning
	}

	w.debounce.add(relPath)
}

// addRecursive walks root adding every directory not skipped by the
// scanner's ignore rules to the fsnotify watch set.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(root, path)
		if relPath == "." {
			return w.fsw.Add(path)
		}
		if ignored, _ := w.scanner.IsIgnored(root, relPath, true); ignored {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
