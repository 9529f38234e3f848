package mg

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type notifyFunc func(id, src string)

func (f notifyFunc) Modified(id, src string) { f(id, src) }

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	type edit struct{ id, src string }
	edits := make(chan edit, 16)
	w, err := NewWatcher(notifyFunc(func(id, src string) {
		edits <- edit{id, src}
	}), DefaultPrefix, nil)
	require.NoError(t, err)
	require.NoError(t, w.AddTree(dir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
		w.Close()
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "flymake_main.go"), []byte("package shadow"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("notes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644))

	select {
	case e := <-edits:
		assert.Equal(t, "main.go", filepath.Base(e.id))
		assert.True(t, filepath.IsAbs(e.id))
	case <-time.After(5 * time.Second):
		t.Fatal("no edit was reported for main.go")
	}
}

func TestWatcherNewDirs(t *testing.T) {
	dir := t.TempDir()
	edits := make(chan string, 64)
	w, err := NewWatcher(notifyFunc(func(id, src string) {
		edits <- id
	}), DefaultPrefix, nil)
	require.NoError(t, err)
	require.NoError(t, w.AddTree(dir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
		w.Close()
	}()

	sub := filepath.Join(dir, "pkg", "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	hidden := filepath.Join(dir, "_hidden")
	require.NoError(t, os.Mkdir(hidden, 0755))

	// the new directories are added by the event loop, so keep writing until it catches up
	fn := filepath.Join(sub, "lib.go")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, os.WriteFile(filepath.Join(hidden, "skip.go"), []byte("package skip"), 0644))
		require.NoError(t, os.WriteFile(fn, []byte("package sub"), 0644))
		select {
		case id := <-edits:
			require.NotEqual(t, "skip.go", filepath.Base(id), "directories rejected by scanDir are not watched")
			assert.Equal(t, fn, id)
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no edit was reported for a file in a new directory")
		}
	}
}
