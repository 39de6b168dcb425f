package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/datawire/dlib/dlog"
)

// Watch loads path once, and then again every time it changes on disk,
// pushing each successfully-parsed *Options down the returned channel. The
// channel is closed when ctx is done. A parse error on reload is logged and
// skipped; the last-known-good Options keeps being used.
func Watch(ctx context.Context, path string) (<-chan *Options, error) {
	initial, err := Load(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make(chan *Options, 1)
	out <- initial

	if path == "" {
		close(out)
		return out, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(out)
		return out, err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		close(out)
		return out, err
	}

	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				opts, err := Load(ctx, path)
				if err != nil {
					dlog.Errorf(ctx, "config: reload of %s failed: %v", path, err)
					continue
				}
				select {
				case out <- opts:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				dlog.Errorf(ctx, "config: watch error: %v", err)
			}
		}
	}()
	return out, nil
}
