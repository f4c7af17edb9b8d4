package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it is written, created or renamed into place
// and passes the new configuration to onChange. Files that fail to load are
// reported to onError and otherwise ignored. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file so editors that save
// by rename are still seen.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
