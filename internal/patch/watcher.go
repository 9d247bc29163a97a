package patch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Cignor/Collider-sub010/internal/ctxlog"
)

// debounceWindow batches the event bursts editors produce for one save into
// a single reload.
const debounceWindow = 250 * time.Millisecond

// Watch reloads the patch whenever an .hcl file under paths changes and
// hands each freshly loaded document to apply. A reload that fails to parse
// is logged and dropped, so the last good patch keeps running. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, paths []string, apply func(*Document)) error {
	logger := ctxlog.FromContext(ctx)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		dir := p
		if !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if err := watchTree(fsw, dir); err != nil {
			return err
		}
	}
	logger.Info("Watching patch files for changes", "paths", paths)

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".hcl" {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("Patch file changed.", "file", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceWindow)
			pending = timer.C

		case <-pending:
			timer = nil
			pending = nil
			doc, err := Load(ctx, paths...)
			if err != nil {
				logger.Error("Patch reload failed, keeping the last good patch", "error", err)
				continue
			}
			apply(doc)

		case werr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Patch watcher error", "error", werr)
		}
	}
}

// watchTree registers dir and every subdirectory with the watcher. New
// directories created later are not picked up; patches live in flat
// directories in practice.
func watchTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
}
