package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/predicate"
)

// LoadAsset decodes and validates the asset file at path.
func LoadAsset(path string, reg *predicate.Registry) (*catalog.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()
	c, err := catalog.Load(f, reg)
	if err != nil {
		return nil, fmt.Errorf("load asset %s: %w", path, err)
	}
	return c, nil
}

// WatchAsset reloads the asset at path whenever it is written and hands
// each valid catalog to swap. A reload that fails is logged and the old
// catalog stays in place. WatchAsset blocks until ctx is cancelled.
func WatchAsset(ctx context.Context, path string, reg *predicate.Registry, swap func(*catalog.Catalog), log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: build tools usually replace the file by rename.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch dir %q: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			c, err := LoadAsset(target, reg)
			if err != nil {
				log.Warn("asset reload failed, keeping current catalog", zap.Error(err))
				continue
			}
			log.Info("asset reloaded",
				zap.Int("dialogues", c.Len()),
				zap.Uint16("version", c.Version()))
			swap(c)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
