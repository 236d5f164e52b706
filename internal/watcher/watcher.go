// Package watcher monitors the tasks directory for external edits and
// feeds settled changes back into the index through a Reconciler. Task
// files are the source of truth: whatever is on disk once the debounce
// window closes is what gets reconciled.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/trellis-io/trellis/internal/filestore"
)

// Reconciler applies settled on-disk state to the index. Calls may be
// replayed and must be idempotent.
type Reconciler interface {
	// ReconcileFile syncs one task file into the index. The file is
	// re-read at call time; stale event payloads are never trusted.
	ReconcileFile(path string) error
	// ReconcileDelete removes the index row for a task whose file is
	// confirmed gone. Unknown IDs are a no-op.
	ReconcileDelete(taskID string) error
}

// Config configures the file watcher.
type Config struct {
	TasksRoot  string
	Reconciler Reconciler
	Logger     *slog.Logger
	DebounceMs int // quiet period in milliseconds (default: 500)
}

// Watcher monitors the tasks root and its per-project subdirectories.
type Watcher struct {
	tasksRoot  string
	reconciler Reconciler
	logger     *slog.Logger

	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer

	// Content hashing to detect meaningful changes
	hashes   map[string]string
	hashesMu sync.RWMutex

	// Lifecycle
	done chan struct{}
}

// New creates a new file watcher.
func New(cfg *Config) (*Watcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.TasksRoot == "" {
		return nil, fmt.Errorf("tasks root is required")
	}
	if cfg.Reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounceMs := cfg.DebounceMs
	if debounceMs <= 0 {
		debounceMs = 500
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		tasksRoot:  cfg.TasksRoot,
		reconciler: cfg.Reconciler,
		logger:     logger,
		fsWatcher:  fsWatcher,
		hashes:     make(map[string]string),
		done:       make(chan struct{}),
	}

	w.debouncer = NewDebouncer(debounceMs, w.handleSettledFile)
	w.debouncer.SetDeleteCallback(w.handleConfirmedDelete)

	return w, nil
}

// Start begins watching the tasks root.
// Blocks until the context is cancelled or an error occurs.
func (w *Watcher) Start(ctx context.Context) error {
	// Watch the parent so we notice the tasks root itself being created.
	if err := w.fsWatcher.Add(filepath.Dir(w.tasksRoot)); err != nil {
		w.logger.Warn("failed to watch tasks parent directory", "error", err)
	}

	if _, err := os.Stat(w.tasksRoot); os.IsNotExist(err) {
		w.logger.Debug("tasks root does not exist, will watch when created", "path", w.tasksRoot)
	} else {
		if err := w.addWatchRecursive(w.tasksRoot); err != nil {
			w.logger.Warn("failed to add initial task watches", "error", err)
		}
	}

	w.logger.Info("file watcher started", "tasksRoot", w.tasksRoot)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopping", "reason", "context cancelled")
			_ = w.Stop()
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
		// Already stopped
		return nil
	default:
		close(w.done)
	}

	w.debouncer.Stop()

	if err := w.fsWatcher.Close(); err != nil {
		return fmt.Errorf("close fsnotify watcher: %w", err)
	}

	w.logger.Info("file watcher stopped")
	return nil
}

// Done returns a channel that's closed when the watcher stops.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// addWatchRecursive adds the directory and all subdirectories to the
// watch list.
func (w *Watcher) addWatchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip paths with errors
		}
		if d.IsDir() {
			if err := w.fsWatcher.Add(path); err != nil {
				w.logger.Debug("failed to watch directory", "path", path, "error", err)
				return nil
			}
			w.logger.Debug("watching directory", "path", path)
		}
		return nil
	})
}

// handleFSEvent processes a raw fsnotify event.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if path == w.tasksRoot {
			w.logger.Info("tasks root created, adding watches")
			if err := w.addWatchRecursive(w.tasksRoot); err != nil {
				w.logger.Warn("failed to watch tasks root", "error", err)
			}
			return
		}
		// New project directories need their own watch before files
		// inside them produce events.
		if strings.HasPrefix(path, w.tasksRoot) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.logger.Debug("new project directory detected, adding watch", "path", path)
				if err := w.fsWatcher.Add(path); err != nil {
					w.logger.Debug("failed to watch new directory", "path", path, "error", err)
				}
				return
			}
		}
	}

	if !strings.HasPrefix(path, w.tasksRoot) {
		return
	}

	taskID := filestore.IDFromPath(path)
	if taskID == "" {
		return
	}

	w.logger.Debug("task fs event", "op", event.Op.String(), "path", path, "taskID", taskID)

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.removeHash(path)
		// fsnotify sends Remove for real deletions but also for renames,
		// atomic saves, and git checkouts. Verify after a short delay.
		w.debouncer.TriggerDelete(taskID, path)
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		// The file is back; any pending delete was a rename or atomic save.
		w.debouncer.CancelDelete(taskID)
		w.debouncer.Trigger(taskID, path)
	}
}

// handleSettledFile runs after the quiet period for a changed file.
func (w *Watcher) handleSettledFile(taskID, path string) {
	changed, err := w.hasContentChanged(path)
	if err != nil {
		w.logger.Debug("failed to check content change", "path", path, "error", err)
		return
	}
	if !changed {
		w.logger.Debug("content unchanged, skipping event", "path", path)
		return
	}

	w.logger.Debug("reconciling settled file", "taskID", taskID, "path", path)
	if err := w.reconciler.ReconcileFile(path); err != nil {
		w.logger.Warn("reconcile failed", "taskID", taskID, "path", path, "error", err)
	}
}

// handleConfirmedDelete runs after a delete has been verified on disk.
func (w *Watcher) handleConfirmedDelete(taskID, path string) {
	w.logger.Debug("reconciling confirmed delete", "taskID", taskID, "path", path)
	if err := w.reconciler.ReconcileDelete(taskID); err != nil {
		w.logger.Warn("delete reconcile failed", "taskID", taskID, "error", err)
	}
}

// hasContentChanged checks if the file content has changed since last
// check. Updates the stored hash if changed.
func (w *Watcher) hasContentChanged(path string) (bool, error) {
	newHash, err := w.hashFile(path)
	if err != nil {
		return false, err
	}

	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()

	oldHash, exists := w.hashes[path]
	if exists && oldHash == newHash {
		return false, nil
	}

	w.hashes[path] = newHash
	return true, nil
}

// removeHash removes the hash for a path.
func (w *Watcher) removeHash(path string) {
	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()
	delete(w.hashes, path)
}

// hashFile computes the SHA256 hash of a file's contents.
func (w *Watcher) hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
