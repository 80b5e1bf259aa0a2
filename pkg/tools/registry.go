package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval collapses editor save bursts into one reload.
const debounceInterval = 100 * time.Millisecond

// Registry holds the operator's enable/disable decisions for native tools,
// persisted as a JSON file. Watch applies external edits live.
type Registry struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	disabled map[string]bool

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// registryFile is the on-disk format. Only explicit off-switches are
// stored; unknown tools stay enabled.
type registryFile struct {
	DisabledTools []string `json:"disabled_tools"`
}

// NewRegistry loads the registry at path. A missing file means every tool
// is enabled.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		path:     path,
		logger:   logger,
		disabled: make(map[string]bool),
	}
	r.reload()
	return r
}

// Enabled reports whether the named tool may be dispatched.
func (r *Registry) Enabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled[name]
}

// SetEnabled flips one tool's switch and persists the file.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	if enabled {
		delete(r.disabled, name)
	} else {
		r.disabled[name] = true
	}
	file := registryFile{DisabledTools: make([]string, 0, len(r.disabled))}
	for tool := range r.disabled {
		file.DisabledTools = append(file.DisabledTools, tool)
	}
	r.mu.Unlock()
	sort.Strings(file.DisabledTools)

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}
	return os.WriteFile(r.path, raw, 0o644)
}

// Watch reloads the registry whenever the file changes. Blocking; returns
// when ctx is cancelled. The parent directory is watched because most
// editors replace files instead of writing in place.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	r.logger.Info("tool registry watcher started", "path", r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			r.triggerReload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			r.logger.Error("tool registry watcher error", "error", err)
		}
	}
}

func (r *Registry) triggerReload() {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()
	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounce = time.AfterFunc(debounceInterval, func() {
		r.reload()
		r.logger.Info("tool registry reloaded", "path", r.path)
	})
}

func (r *Registry) reload() {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read tool registry", "path", r.path, "error", err)
		}
		return
	}
	var file registryFile
	if err := json.Unmarshal(raw, &file); err != nil {
		r.logger.Warn("ignoring corrupt tool registry", "path", r.path, "error", err)
		return
	}

	disabled := make(map[string]bool, len(file.DisabledTools))
	for _, name := range file.DisabledTools {
		disabled[name] = true
	}
	r.mu.Lock()
	r.disabled = disabled
	r.mu.Unlock()
}
