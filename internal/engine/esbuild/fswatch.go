package esbuild

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/tachyon/internal/logfields"
)

// treeWatcher rebuilds after changes to relevant files below root. Events are
// debounced and rebuilds run on a single worker, so at most one rebuild is in
// flight and one more is queued.
type treeWatcher struct {
	fs       *fsnotify.Watcher
	root     string
	ignore   func(path string) bool
	relevant func(path string) bool
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
	trigger  func()
	stopT    func()
}

// watchTree watches every non-ignored directory below root. A nil relevant
// treats every file as relevant.
func watchTree(ctx context.Context, root string, ignore, relevant func(string) bool, debounce time.Duration, logger *slog.Logger, rebuild func(context.Context)) (*treeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	tw := &treeWatcher{fs: w, root: root, ignore: ignore, relevant: relevant, logger: logger}
	if err := tw.addDirsRecursive(root); err != nil {
		_ = w.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	tw.cancel = cancel
	rebuildReq, trigger, stopTimer := setupRebuildDebouncer(debounce)
	tw.trigger = trigger
	tw.stopT = stopTimer

	tw.wg.Add(2)
	go func() {
		defer tw.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-rebuildReq:
				rebuild(runCtx)
			}
		}
	}()
	go func() {
		defer tw.wg.Done()
		tw.loop(runCtx)
	}()
	return tw, nil
}

// setupRebuildDebouncer returns the rebuild request channel, the trigger and
// a function stopping a pending timer.
func setupRebuildDebouncer(delay time.Duration) (chan struct{}, func(), func()) {
	var mu sync.Mutex
	var timer *time.Timer
	rebuildReq := make(chan struct{}, 1)

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			select {
			case rebuildReq <- struct{}{}:
			default:
			}
		})
	}
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}
	return rebuildReq, trigger, stop
}

func (tw *treeWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-tw.fs.Events:
			if !ok {
				return
			}
			tw.handleEvent(ev)
		case err, ok := <-tw.fs.Errors:
			if !ok {
				return
			}
			tw.logger.Warn("watcher error", logfields.Error(err))
		}
	}
}

func (tw *treeWatcher) handleEvent(ev fsnotify.Event) {
	if tw.ignore(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = tw.addDirsRecursive(ev.Name)
		}
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	if tw.relevant != nil && !tw.relevant(ev.Name) {
		return
	}
	tw.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	tw.trigger()
}

func (tw *treeWatcher) addDirsRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != tw.root && tw.ignore(path) {
			return filepath.SkipDir
		}
		if err := tw.fs.Add(path); err != nil {
			tw.logger.Warn("watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// Close stops watching and waits for a running rebuild to finish.
func (tw *treeWatcher) Close() error {
	var err error
	tw.once.Do(func() {
		tw.cancel()
		tw.stopT()
		err = tw.fs.Close()
		tw.wg.Wait()
	})
	return err
}

// ignoreFunc builds the filter for watch events: dot entries, editor temp
// files, node_modules, the output directory and configured exclusions.
func ignoreFunc(root, outDir string, exclude []string) func(string) bool {
	return func(path string) bool {
		if isWithin(outDir, path) {
			return true
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		rel = filepath.ToSlash(rel)
		for _, part := range strings.Split(rel, "/") {
			if part == "node_modules" || (strings.HasPrefix(part, ".") && part != "." && part != "..") {
				return true
			}
		}
		if shouldIgnoreFile(filepath.Base(path)) {
			return true
		}
		for _, pattern := range exclude {
			if ok, _ := filepath.Match(pattern, rel); ok {
				return true
			}
			if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
				return true
			}
		}
		return false
	}
}

func shouldIgnoreFile(base string) bool {
	return strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") ||
		base == "Thumbs.db"
}
