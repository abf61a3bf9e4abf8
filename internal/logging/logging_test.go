package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProjectLogAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj")
	for i := 0; i < 2; i++ {
		f, err := OpenProjectLog(dir)
		if err != nil {
			t.Fatal(err)
		}
		var console bytes.Buffer
		l := WithComponent(WithProjectLog(&console, f, false), "compile")
		l.Info("moved scene", "scene", "00000000-00000029")
		l.Debug("hidden")
		f.Close()
		if !strings.Contains(console.String(), "moved scene") {
			t.Fatalf("console = %q", console.String())
		}
	}
	b, err := os.ReadFile(filepath.Join(dir, ProjectLogName))
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	if strings.Count(out, "component=compile") != 2 {
		t.Errorf("want two appended entries:\n%s", out)
	}
	if !strings.Contains(out, "scene=00000000-00000029") || strings.Contains(out, "hidden") {
		t.Errorf("project log:\n%s", out)
	}
}

func TestVerboseLevel(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, true).Debug("probe args")
	if !strings.Contains(buf.String(), "probe args") {
		t.Fatalf("debug line missing: %q", buf.String())
	}
	buf.Reset()
	New(&buf, false).Debug("probe args")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %q", buf.String())
	}
}
