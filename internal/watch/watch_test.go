package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestChangedComparesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.typ")
	writeFile(t, path, "Hello")

	w, err := New(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Track([]string{path}); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "Hello")
	if w.changed(path) {
		t.Fatalf("identical rewrite reported as change")
	}
	writeFile(t, path, "Hello world")
	if !w.changed(path) {
		t.Fatalf("edit not reported")
	}
	if w.changed(path) {
		t.Fatalf("same edit reported twice")
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !w.changed(path) {
		t.Fatalf("removal not reported")
	}
	if w.changed(filepath.Join(dir, "other.typ")) {
		t.Fatalf("untracked file reported")
	}
}

func TestRunDeliversTrackedChanges(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.typ")
	chapter := filepath.Join(dir, "chapter.typ")
	untracked := filepath.Join(dir, "notes.txt")
	writeFile(t, main, "main")
	writeFile(t, chapter, "chapter")

	w, err := New(20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Track([]string{main, chapter}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 8)
	go func() {
		_ = w.Run(ctx, func(path string) { got <- path })
	}()

	writeFile(t, untracked, "ignored")
	writeFile(t, chapter, "chapter, edited")

	select {
	case path := <-got:
		if path != chapter {
			t.Fatalf("changed path = %q, want %q", path, chapter)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("change not delivered")
	}
}

func TestTrackReplacesSet(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.typ")
	b := filepath.Join(dir, "b.typ")
	writeFile(t, a, "a")
	writeFile(t, b, "b")

	w, err := New(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Track([]string{a, b}); err != nil {
		t.Fatal(err)
	}
	if err := w.Track([]string{b}); err != nil {
		t.Fatal(err)
	}
	if w.tracked(a) || !w.tracked(b) {
		t.Fatalf("tracked set not replaced")
	}
}
