package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period after the last change before a
// project is invalidated.
const DefaultDebounce = 500 * time.Millisecond

// skippedDirs are never watched. They hold build output, not inputs.
var skippedDirs = map[string]bool{
	"DerivedData":  true,
	"build":        true,
	"Pods":         true,
	"Carthage":     true,
	"node_modules": true,
	"xcuserdata":   true,
}

// IsProjectFile reports whether a change to path can change build settings.
func IsProjectFile(path string) bool {
	base := filepath.Base(path)
	switch base {
	case "project.pbxproj", "contents.xcworkspacedata":
		return true
	}
	switch filepath.Ext(base) {
	case ".xcscheme", ".xcconfig":
		return true
	}
	return false
}

// Invalidation reports one debounced invalidation of a project root.
type Invalidation struct {
	Root      string
	Files     []string
	Removed   int64
	Refreshed []Response
	Err       error
}

// WatcherOptions configure a Watcher.
type WatcherOptions struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// Refresh reloads the tracked requests of a root after invalidating it.
	Refresh bool

	// Notify, when set, receives every invalidation.
	Notify func(Invalidation)
}

// Watcher invalidates cached settings when project files change.
type Watcher struct {
	service *Service
	opts    WatcherOptions
	logger  zerolog.Logger
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	roots   map[string][]Request
	pending map[string][]string
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher invalidating through service.
func NewWatcher(service *Service, logger zerolog.Logger, opts WatcherOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		service: service,
		opts:    opts,
		logger:  logger.With().Str("component", "project-watcher").Logger(),
		fsw:     fsw,
		roots:   make(map[string][]Request),
		pending: make(map[string][]string),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Track watches the directory containing req's workspace or project.
func (w *Watcher) Track(req Request) error {
	if req.Args.Project.IsZero() {
		return fmt.Errorf("request has no project")
	}
	root, err := filepath.Abs(req.Args.Project.Dir())
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", req.Args.Project.Path, err)
	}

	w.mu.Lock()
	_, known := w.roots[root]
	w.mu.Unlock()

	if !known {
		if err := w.addTree(root); err != nil {
			return err
		}
		w.logger.Info().Str("root", root).Msg("Watching project")
	}

	w.mu.Lock()
	w.roots[root] = append(w.roots[root], req)
	w.mu.Unlock()
	return nil
}

// Close stops watching. Run closes the watcher itself when it returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Roots returns the watched project roots.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	roots := make([]string, 0, len(w.roots))
	for root := range w.roots {
		roots = append(roots, root)
	}
	return roots
}

// addTree watches dir and its subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (skippedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run processes file events until ctx is done, then waits for in-flight
// invalidations.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		for root, t := range w.timers {
			if t.Stop() {
				w.wg.Done()
			}
			delete(w.timers, root)
		}
		w.mu.Unlock()
		w.wg.Wait()
		_ = w.fsw.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
			}
			if ext := filepath.Ext(event.Name); ext == ".xcodeproj" || ext == ".xcworkspace" {
				w.schedule(ctx, event.Name)
			}
			return
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !IsProjectFile(event.Name) {
		return
	}

	w.logger.Debug().
		Str("file", event.Name).
		Str("op", event.Op.String()).
		Msg("Project file changed")
	w.schedule(ctx, event.Name)
}

// schedule restarts the debounce timer of the root containing path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	root := w.rootOf(path)
	if root == "" {
		return
	}

	w.pending[root] = append(w.pending[root], path)
	if t, ok := w.timers[root]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.timers[root] = time.AfterFunc(w.opts.Debounce, func() {
		defer w.wg.Done()
		w.invalidate(ctx, root)
	})
}

// rootOf returns the longest tracked root containing path. Callers hold mu.
func (w *Watcher) rootOf(path string) string {
	best := ""
	for root := range w.roots {
		if (path == root || strings.HasPrefix(path, root+string(filepath.Separator))) && len(root) > len(best) {
			best = root
		}
	}
	return best
}

func (w *Watcher) invalidate(ctx context.Context, root string) {
	w.mu.Lock()
	files := w.pending[root]
	delete(w.pending, root)
	delete(w.timers, root)
	reqs := append([]Request(nil), w.roots[root]...)
	w.mu.Unlock()

	inv := Invalidation{Root: root, Files: files}
	inv.Removed, inv.Err = w.service.Invalidate(ctx, root)
	if inv.Err == nil && w.opts.Refresh && ctx.Err() == nil {
		inv.Refreshed = w.service.LoadMany(ctx, reqs, true)
		for _, resp := range inv.Refreshed {
			if resp.Err != nil {
				w.logger.Warn().Err(resp.Err).Stringer("request", resp.Request).Msg("Failed to refresh settings")
			}
		}
	}

	logEvent := w.logger.Info()
	if inv.Err != nil {
		logEvent = w.logger.Error().Err(inv.Err)
	}
	logEvent.
		Str("root", root).
		Int("files", len(files)).
		Int64("removed", inv.Removed).
		Int("refreshed", len(inv.Refreshed)).
		Msg("Project changed")

	if w.opts.Notify != nil {
		w.opts.Notify(inv)
	}
}
