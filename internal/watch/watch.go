// Package watch rescans a document root whenever files under it change.
// It only ever writes the change report; apply stays an operator decision.
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

	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

// Sink receives per-file change notifications.
type Sink interface {
	PublishFileEvent(kind, path string)
}

// RescanFunc recomputes and checkpoints the change report.
type RescanFunc func(ctx context.Context) (*workflow.ChangeReport, error)

// Options tunes the watcher.
type Options struct {
	Debounce time.Duration
	Rescan   RescanFunc
	Sink     Sink
	// OnScan is called after every successful rescan.
	OnScan func(*workflow.ChangeReport)
	// OnIndex is called when the rendered document is rewritten, at most
	// once per debounce window.
	OnIndex func()
}

// Watch blocks until ctx is cancelled. Bursts of events collapse into one
// rescan after opts.Debounce of quiet.
func Watch(ctx context.Context, ws *workspace.Workspace, opts Options) error {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := ws.Root()
	log := ws.Log
	if err := addDirs(w, ws, root); err != nil {
		return err
	}
	log.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(opts.Debounce)
			fire = timer.C
			return
		}
		timer.Reset(opts.Debounce)
	}
	var indexTimer *time.Timer
	var indexFire <-chan time.Time
	indexChanged := func() {
		if opts.OnIndex == nil || indexTimer != nil {
			return
		}
		indexTimer = time.NewTimer(opts.Debounce)
		indexFire = indexTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if indexTimer != nil {
				indexTimer.Stop()
			}
			log.Info("watcher: stopped")
			return nil

		case <-indexFire:
			indexTimer, indexFire = nil, nil
			opts.OnIndex()

		case <-fire:
			timer, fire = nil, nil
			if opts.Rescan == nil {
				continue
			}
			report, err := opts.Rescan(ctx)
			if err != nil {
				log.Warn("watcher: rescan failed", slog.String("error", err.Error()))
				continue
			}
			if opts.OnScan != nil {
				opts.OnScan(report)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, ok := relative(root, ev.Name)
			if !ok {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if ws.Filter.SkipDir(rel) {
						continue
					}
					if addErr := addDirs(w, ws, ev.Name); addErr != nil {
						log.Warn("watcher: add new dir failed", slog.String("path", rel), slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}
			if rel == ws.IndexFile && ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				indexChanged()
				continue
			}
			if !relevant(ws, rel) {
				continue
			}

			kind := ""
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = "created"
			case ev.Op&fsnotify.Write != 0:
				kind = "updated"
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = "deleted"
			default:
				continue
			}
			log.Debug("watcher: change", slog.String("path", rel), slog.String("op", kind))
			if opts.Sink != nil {
				opts.Sink.PublishFileEvent(kind, "./"+rel)
			}
			schedule()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func relative(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// relevant drops tool-owned and temporary files, and anything the scan
// filter would not list.
func relevant(ws *workspace.Workspace, rel string) bool {
	base := filepath.Base(rel)
	if strings.HasPrefix(base, ".") {
		return false
	}
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir != "." && ws.Filter.SkipDir(dir) {
		return false
	}
	return ws.Filter.Allows(rel)
}

func addDirs(w *fsnotify.Watcher, ws *workspace.Workspace, start string) error {
	root := ws.Root()
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := relative(root, p); ok && ws.Filter.SkipDir(rel) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
