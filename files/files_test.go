package files

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDirSaverRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diagrams")
	s := DirSaver{Dir: dir}
	ctx := context.Background()

	saved, path, err := s.Save(ctx, "", "graph TD\nA-->B")
	if err != nil || !saved {
		t.Fatalf("Save = %v, %v", saved, err)
	}
	if path != filepath.Join(dir, DefaultFilename) {
		t.Fatalf("path = %q", path)
	}
	got, err := s.Load(DefaultFilename)
	if err != nil || got != "graph TD\nA-->B" {
		t.Fatalf("Load = %q, %v", got, err)
	}

	if _, _, err := s.Save(ctx, "flow.mmd", "flowchart LR"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Save(ctx, "net.d2", "a -> b"); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644)
	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"flow.mmd", DefaultFilename, "net.d2"}, names); diff != "" {
		t.Fatalf("List (-want +got):\n%s", diff)
	}
}

func TestDirSaverRejects(t *testing.T) {
	s := DirSaver{Dir: t.TempDir()}
	for _, name := range []string{"../escape.txt", "sub/dir.txt", "image.png", "noext"} {
		if _, _, err := s.Save(context.Background(), name, "x"); !errors.Is(err, ErrFileSaveFailed) {
			t.Errorf("Save(%q) err = %v, want ErrFileSaveFailed", name, err)
		}
	}
	for _, name := range []string{"", "../etc/passwd", "missing.txt"} {
		if _, err := s.Load(name); !errors.Is(err, ErrFileLoadFailed) {
			t.Errorf("Load(%q) err = %v, want ErrFileLoadFailed", name, err)
		}
	}
}

func TestDirSaverCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saved, _, err := DirSaver{Dir: dir}.Save(ctx, "a.txt", "x")
	if saved || err != nil {
		t.Fatalf("cancelled save = %v, %v", saved, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("file written despite cancel: %v", err)
	}
}

func TestDirSaverListMissingDir(t *testing.T) {
	names, err := DirSaver{Dir: filepath.Join(t.TempDir(), "nope")}.List()
	if err != nil || len(names) != 0 {
		t.Fatalf("List = %v, %v", names, err)
	}
}

func TestDownloadSaver(t *testing.T) {
	rec := httptest.NewRecorder()
	saved, name, err := DownloadSaver{W: rec}.Save(context.Background(), "../x.txt", "sequenceDiagram")
	if err != nil || !saved || name != DefaultFilename {
		t.Fatalf("Save = %v, %q, %v", saved, name, err)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="mermaid-diagram.txt"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if rec.Body.String() != "sequenceDiagram" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestRead(t *testing.T) {
	got, err := Read(strings.NewReader("\ufeffgraph TD\xff"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "graph TD\ufffd" {
		t.Fatalf("Read = %q", got)
	}
	big := strings.NewReader(strings.Repeat("a", 1<<20+1))
	if _, err := Read(big); !errors.Is(err, ErrFileLoadFailed) {
		t.Fatalf("oversize err = %v", err)
	}
}
