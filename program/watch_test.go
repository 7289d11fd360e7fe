// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package program

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchRequiresDir(t *testing.T) {
	c := newCache(t)
	if _, err := Watch(c); !errors.Is(err, ErrNoWatchDir) {
		t.Errorf("Watch = %v, want ErrNoWatchDir", err)
	}
}

func TestWatchReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "element.wgsl")
	if err := os.WriteFile(path, []byte("// v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newCache(t, WithDir(dir))
	w, err := Watch(c)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close() //nolint:errcheck

	if w.ReloadIfChanged() {
		t.Fatal("no change yet, ReloadIfChanged should be false")
	}

	if err := os.WriteFile(path, []byte("// v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !w.ReloadIfChanged() {
		if time.Now().After(deadline) {
			t.Fatal("change never observed")
		}
		time.Sleep(50 * time.Millisecond)
	}
	// The dirty flag is consumed by the reload.
	if w.ReloadIfChanged() {
		t.Error("ReloadIfChanged should be false after the reload")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	c := newCache(t, WithDir(dir))
	w, err := Watch(c)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close() //nolint:errcheck

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(watchDebounce + 200*time.Millisecond)
	if w.ReloadIfChanged() {
		t.Error("non-WGSL file should not mark the cache stale")
	}
}
