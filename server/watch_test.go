package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/codec"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/types"
)

// writeAsset encodes the guard dialogue with the given greeting.
func writeAsset(t *testing.T, dir, greeting string) string {
	t.Helper()
	d := guardDialogue()
	d.Pages[0].Text = greeting
	data, err := codec.EncodeAsset([]types.Dialogue{d}, codec.CurrentVersion)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "dialogues.prly")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAsset(t *testing.T) {
	path := writeAsset(t, t.TempDir(), "Hello")
	c, err := LoadAsset(path, predicate.Default())
	if err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	if c.Version() != codec.CurrentVersion || c.Len() != 1 {
		t.Errorf("catalog version %d with %d dialogues", c.Version(), c.Len())
	}
	if _, err := LoadAsset(filepath.Join(t.TempDir(), "missing.prly"), nil); err == nil {
		t.Error("missing file should fail")
	}
}

func TestWatchAsset(t *testing.T) {
	dir := t.TempDir()
	path := writeAsset(t, dir, "Hello")

	swaps := make(chan *catalog.Catalog, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchAsset(ctx, path, predicate.Default(), func(c *catalog.Catalog) { swaps <- c }, nil)
	}()

	// A broken write must not reach swap.
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The watcher starts asynchronously; keep rewriting until it notices.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var got *catalog.Catalog
	for got == nil {
		select {
		case got = <-swaps:
		case <-tick.C:
			writeAsset(t, dir, "Halt!")
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}

	d, ok := got.Get(7)
	if !ok || d.Pages[0].Text != "Halt!" {
		t.Errorf("reloaded dialogue = %+v, want new greeting", d)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchAsset returned %v", err)
	}
}
