package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("creates watcher with root", func(t *testing.T) {
		w := New("/tmp/project")
		require.NotNil(t, w)
		assert.Equal(t, "/tmp/project", w.rootPath)
		assert.Empty(t, w.skipDirs)
	})

	t.Run("skip dirs are cleaned and empty entries dropped", func(t *testing.T) {
		w := New("/tmp/project", WithSkipDirs("/tmp/project/data/", ""))
		assert.Equal(t, []string{"/tmp/project/data"}, w.skipDirs)
	})
}

func TestWatcher_Watch(t *testing.T) {
	t.Run("reports created files", func(t *testing.T) {
		dir := t.TempDir()
		w := New(dir)
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := w.Watch(ctx)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = os.WriteFile(filepath.Join(dir, "plan.md"), []byte("# Plan"), 0o644)
		}()

		select {
		case change := <-changes:
			assert.Contains(t, change.Path, "plan.md")
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for file change")
		}
	})

	t.Run("watches directories created later", func(t *testing.T) {
		dir := t.TempDir()
		w := New(dir)
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := w.Watch(ctx)
		require.NoError(t, err)

		sub := filepath.Join(dir, "annexes")
		require.NoError(t, os.Mkdir(sub, 0o755))
		// give the loop time to add the new directory
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(sub, "map.pdf"), []byte("%PDF"), 0o644))

		deadline := time.After(2 * time.Second)
		for {
			select {
			case change := <-changes:
				if filepath.Base(change.Path) == "map.pdf" {
					return
				}
			case <-deadline:
				t.Fatal("timeout waiting for nested file change")
			}
		}
	})

	t.Run("channel closes on cancel", func(t *testing.T) {
		w := New(t.TempDir())
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		changes, err := w.Watch(ctx)
		require.NoError(t, err)

		cancel()
		select {
		case _, ok := <-changes:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel not closed")
		}
	})

	t.Run("missing root fails", func(t *testing.T) {
		w := New(filepath.Join(t.TempDir(), "missing"))
		defer w.Close()

		_, err := w.Watch(context.Background())
		assert.Error(t, err)
	})

	t.Run("closed watcher fails", func(t *testing.T) {
		w := New(t.TempDir())
		require.NoError(t, w.Close())

		_, err := w.Watch(context.Background())
		assert.ErrorIs(t, err, ErrWatcherClosed)
	})
}

func TestHandleFsEvent(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(t *testing.T, dir string) string
		operation    fsnotify.Op
		expectChange bool
		expectedType ChangeType
	}{
		{
			name:         "create file",
			setup:        writeFile("plan.md"),
			operation:    fsnotify.Create,
			expectChange: true,
			expectedType: ChangeCreated,
		},
		{
			name:         "write file",
			setup:        writeFile("plan.md"),
			operation:    fsnotify.Write,
			expectChange: true,
			expectedType: ChangeUpdated,
		},
		{
			name:         "remove file",
			setup:        missingFile("removed.md"),
			operation:    fsnotify.Remove,
			expectChange: true,
			expectedType: ChangeDeleted,
		},
		{
			name:         "rename file",
			setup:        missingFile("old.md"),
			operation:    fsnotify.Rename,
			expectChange: true,
			expectedType: ChangeDeleted,
		},
		{
			name:      "chmod is ignored",
			setup:     writeFile("plan.md"),
			operation: fsnotify.Chmod,
		},
		{
			name: "directory create is ignored",
			setup: func(t *testing.T, dir string) string {
				path := filepath.Join(dir, "annexes")
				require.NoError(t, os.Mkdir(path, 0o755))
				return path
			},
			operation: fsnotify.Create,
		},
		{
			name:      "hidden file is ignored",
			setup:     writeFile(".DS_Store"),
			operation: fsnotify.Write,
		},
		{
			name:         "write with chmod counts as update",
			setup:        writeFile("plan.md"),
			operation:    fsnotify.Write | fsnotify.Chmod,
			expectChange: true,
			expectedType: ChangeUpdated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := tt.setup(t, dir)

			change := New(dir).handleFsEvent(fsnotify.Event{Name: path, Op: tt.operation})

			if !tt.expectChange {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.expectedType, change.Type)
			assert.Equal(t, path, change.Path)
		})
	}

	t.Run("skipped directory is ignored", func(t *testing.T) {
		dir := t.TempDir()
		data := filepath.Join(dir, "data")
		w := New(dir, WithSkipDirs(data))

		change := w.handleFsEvent(fsnotify.Event{Name: filepath.Join(data, "sessions", "x.json"), Op: fsnotify.Write})
		assert.Nil(t, change)
	})
}

func TestDebounce(t *testing.T) {
	t.Run("groups bursts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes := make(chan Change)
		batches := Debounce(ctx, changes, 50*time.Millisecond)

		go func() {
			changes <- Change{Type: ChangeCreated, Path: "a.md"}
			changes <- Change{Type: ChangeUpdated, Path: "a.md"}
			changes <- Change{Type: ChangeCreated, Path: "b.md"}
		}()

		select {
		case batch := <-batches:
			assert.Len(t, batch, 3)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for batch")
		}
	})

	t.Run("flushes pending on close", func(t *testing.T) {
		changes := make(chan Change, 1)
		batches := Debounce(context.Background(), changes, time.Hour)

		changes <- Change{Type: ChangeDeleted, Path: "a.md"}
		close(changes)

		batch, ok := <-batches
		require.True(t, ok)
		assert.Len(t, batch, 1)

		_, ok = <-batches
		assert.False(t, ok)
	})
}

func writeFile(name string) func(t *testing.T, dir string) string {
	return func(t *testing.T, dir string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
		return path
	}
}

func missingFile(name string) func(t *testing.T, dir string) string {
	return func(_ *testing.T, dir string) string {
		return filepath.Join(dir, name)
	}
}
