package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	mu       sync.Mutex
	ingested []string
	deleted  []string
	contents map[string]string
	fail     bool
}

func newFakeIngester() *fakeIngester {
	return &fakeIngester{contents: map[string]string{}}
}

func (f *fakeIngester) ReplaceFile(ctx context.Context, path string, displayName string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("embedding provider unreachable")
	}
	f.ingested = append(f.ingested, displayName)
	f.contents[displayName] = string(content)
	return 1, nil
}

func (f *fakeIngester) DeleteSource(ctx context.Context, source string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, source)
	if _, ok := f.contents[source]; ok {
		delete(f.contents, source)
		return 1, nil
	}
	return 0, nil
}

func (f *fakeIngester) snapshot() (ingested []string, contents map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents = map[string]string{}
	for k, v := range f.contents {
		contents[k] = v
	}
	return append([]string(nil), f.ingested...), contents
}

func textOnly(name string) bool {
	return strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".md")
}

func startWatcher(t *testing.T, ingester Ingester, dir string) {
	w, err := New(ingester, textOnly, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNew(t *testing.T) {
	t.Run("nil ingester returns error", func(t *testing.T) {
		w, err := New(nil, nil, 0, nil)
		assert.Error(t, err)
		assert.Nil(t, w)
	})

	t.Run("Invalid call Add with a file", func(t *testing.T) {
		w, err := New(newFakeIngester(), nil, 0, nil)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		assert.Error(t, w.Add(path))
	})
}

func TestSync(t *testing.T) {
	t.Run("Valid call Sync ingests supported visible files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "notes"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "resume.txt"), []byte("Yash"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes", "go.md"), []byte("Go"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("png"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("secret"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD.txt"), []byte("ref"), 0o644))

		ingester := newFakeIngester()
		w, err := New(ingester, textOnly, 0, nil)
		require.NoError(t, err)
		require.NoError(t, w.Add(dir))
		require.NoError(t, w.Sync(context.Background()))

		ingested, _ := ingester.snapshot()
		assert.ElementsMatch(t, []string{"resume.txt", "notes/go.md"}, ingested)
	})

	t.Run("Failed re-ingestion keeps the previous chunks", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "resume.txt")
		require.NoError(t, os.WriteFile(path, []byte("Yash"), 0o644))

		ingester := newFakeIngester()
		w, err := New(ingester, textOnly, 0, nil)
		require.NoError(t, err)
		require.NoError(t, w.Add(dir))
		require.NoError(t, w.Sync(context.Background()))

		ingester.mu.Lock()
		ingester.fail = true
		ingester.mu.Unlock()
		require.NoError(t, os.WriteFile(path, []byte("Yash Go"), 0o644))
		require.NoError(t, w.Sync(context.Background()))

		_, contents := ingester.snapshot()
		assert.Equal(t, "Yash", contents["resume.txt"])
		assert.Empty(t, ingester.deleted, "Expected no delete for an existing file")
	})
}

func TestSchedule(t *testing.T) {
	t.Run("Valid call schedule after the timer fired", func(t *testing.T) {
		w, err := New(newFakeIngester(), textOnly, 20*time.Millisecond, nil)
		require.NoError(t, err)
		t.Cleanup(func() { w.fs.Close() })

		path := filepath.Join(t.TempDir(), "draft.md")
		fired := make(chan struct{})
		w.timers[path] = time.AfterFunc(0, func() { close(fired) })
		<-fired

		w.schedule(path)

		select {
		case got := <-w.ready:
			assert.Equal(t, path, got)
		case <-time.After(time.Second):
			t.Fatal("Expected the path to be handed over after the debounce")
		}
		require.Eventually(t, func() bool {
			w.mu.Lock()
			defer w.mu.Unlock()
			_, ok := w.timers[path]
			return !ok
		}, time.Second, 5*time.Millisecond)
	})
}

func TestRun(t *testing.T) {
	t.Run("Created file is ingested", func(t *testing.T) {
		dir := t.TempDir()
		ingester := newFakeIngester()
		startWatcher(t, ingester, dir)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello"), 0o644))

		require.Eventually(t, func() bool {
			_, contents := ingester.snapshot()
			return contents["new.txt"] == "hello"
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("Rapid writes are debounced into one ingestion", func(t *testing.T) {
		dir := t.TempDir()
		ingester := newFakeIngester()
		startWatcher(t, ingester, dir)

		path := filepath.Join(dir, "draft.md")
		for i := 0; i < 5; i++ {
			require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0o644))
		}

		require.Eventually(t, func() bool {
			_, contents := ingester.snapshot()
			return contents["draft.md"] == "xxxxx"
		}, 3*time.Second, 20*time.Millisecond)

		time.Sleep(200 * time.Millisecond)
		ingested, _ := ingester.snapshot()
		assert.Len(t, ingested, 1)
	})

	t.Run("Removed file is deleted from the index", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "old.txt")
		require.NoError(t, os.WriteFile(path, []byte("bye"), 0o644))

		ingester := newFakeIngester()
		startWatcher(t, ingester, dir)
		require.NoError(t, os.WriteFile(path, []byte("bye again"), 0o644))
		require.Eventually(t, func() bool {
			_, contents := ingester.snapshot()
			return contents["old.txt"] == "bye again"
		}, 3*time.Second, 20*time.Millisecond)

		require.NoError(t, os.Remove(path))
		require.Eventually(t, func() bool {
			_, contents := ingester.snapshot()
			_, ok := contents["old.txt"]
			return !ok
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("Files in new subdirectories are watched", func(t *testing.T) {
		dir := t.TempDir()
		ingester := newFakeIngester()
		startWatcher(t, ingester, dir)

		sub := filepath.Join(dir, "projects")
		require.NoError(t, os.Mkdir(sub, 0o755))
		// give the watcher time to add the new directory
		time.Sleep(200 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(sub, "ragbot.md"), []byte("rag"), 0o644))

		require.Eventually(t, func() bool {
			_, contents := ingester.snapshot()
			return contents["projects/ragbot.md"] == "rag"
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("Unsupported files are ignored", func(t *testing.T) {
		dir := t.TempDir()
		ingester := newFakeIngester()
		startWatcher(t, ingester, dir)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.png"), []byte("png"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".swap.txt"), []byte("tmp"), 0o644))
		time.Sleep(300 * time.Millisecond)

		ingested, _ := ingester.snapshot()
		assert.Empty(t, ingested)
	})
}
