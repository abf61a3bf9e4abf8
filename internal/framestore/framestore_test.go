package framestore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"remixer/internal/logging"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func bases(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func TestSourceFrameNames(t *testing.T) {
	name := SourceFrameName(8, 42)
	if name != "source00000042.png" {
		t.Fatalf("SourceFrameName = %q", name)
	}
	if n, ok := SourceFrameIndex(name); !ok || n != 42 {
		t.Fatalf("SourceFrameIndex = %d %v", n, ok)
	}
	if _, ok := SourceFrameIndex("frame1.png"); ok {
		t.Fatalf("non-source name accepted")
	}
	if got := StageFrameName("0000-0009", 4, 3); got != "0000-0009_0003.png" {
		t.Fatalf("StageFrameName = %q", got)
	}
}

func TestMoveAndCopySourceRange(t *testing.T) {
	root := t.TempDir()
	s := New(root, "", logging.Discard())
	var names []string
	for i := 0; i < 6; i++ {
		names = append(names, SourceFrameName(4, i))
	}
	writeFrames(t, s.Layout.Source, names...)

	dst := filepath.Join(s.Layout.Scenes, "0002-0004")
	if err := s.CopySourceRange(4, 2, 4, dst); err != nil {
		t.Fatal(err)
	}
	if FrameCount(dst) != 3 || FrameCount(s.Layout.Source) != 6 {
		t.Fatalf("copy counts: dst=%d src=%d", FrameCount(dst), FrameCount(s.Layout.Source))
	}

	moved := filepath.Join(s.Layout.Scenes, "0000-0001")
	if err := s.MoveSourceRange(4, 0, 1, moved); err != nil {
		t.Fatal(err)
	}
	if FrameCount(moved) != 2 || FrameCount(s.Layout.Source) != 4 {
		t.Fatalf("move counts: dst=%d src=%d", FrameCount(moved), FrameCount(s.Layout.Source))
	}
	if err := s.MoveSourceRange(4, 0, 0, moved); err == nil {
		t.Fatalf("moving a missing frame should fail")
	}
}

func TestResequence(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "a.png", "c.png", "b.png")
	if err := Resequence(dir, "0000-0002", 4); err != nil {
		t.Fatal(err)
	}
	files, _ := Frames(dir)
	want := []string{"0000-0002_0000.png", "0000-0002_0001.png", "0000-0002_0002.png"}
	if !reflect.DeepEqual(bases(files), want) {
		t.Fatalf("resequenced = %v", bases(files))
	}
	b, _ := os.ReadFile(files[1])
	if string(b) != "b.png" {
		t.Fatalf("order not kept: second frame holds %q", b)
	}
}

func TestPurgeKeepsRelativePathsAndDescriptor(t *testing.T) {
	root := t.TempDir()
	desc := filepath.Join(root, "project.yaml")
	if err := os.WriteFile(desc, []byte("progress: process\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(root, desc, logging.Discard())
	writeFrames(t, filepath.Join(s.Layout.Resize, "0000-0009"), "x.png")

	dir, err := s.Purge(s.Layout.Resize, filepath.Join(root, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dir) != "PURGED_1" {
		t.Fatalf("purge dir = %s", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, ResizeDir, "0000-0009", "x.png")); err != nil {
		t.Fatalf("purged frame not preserved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "project.yaml")); err != nil {
		t.Fatalf("descriptor copy missing: %v", err)
	}
	if _, err := os.Stat(s.Layout.Resize); !os.IsNotExist(err) {
		t.Fatalf("purged path still present")
	}

	writeFrames(t, filepath.Join(s.Layout.Upscale, "0000-0009"), "y.png")
	dir2, err := s.PurgeScene("0000-0009", s.Layout.Resize, s.Layout.Upscale)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dir2) != "PURGED_2" {
		t.Fatalf("second purge dir = %s", dir2)
	}

	none, err := s.Purge(filepath.Join(root, "nothing"))
	if err != nil || none != "" {
		t.Fatalf("purge of nothing = %q %v", none, err)
	}

	n, err := s.RemovePurged()
	if err != nil || n != 2 {
		t.Fatalf("RemovePurged = %d %v", n, err)
	}
	dirs, _ := s.PurgeDirs()
	if len(dirs) != 0 {
		t.Fatalf("purge dirs left: %v", dirs)
	}
}

func TestMoveFrames(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a")
	dst := filepath.Join(root, "b")
	writeFrames(t, src, "1.png", "2.png")
	writeFrames(t, dst, "0.png")
	if err := MoveFrames(src, dst); err != nil {
		t.Fatal(err)
	}
	if FrameCount(dst) != 3 {
		t.Fatalf("dst frames = %d", FrameCount(dst))
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("src not removed")
	}
}
