package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestBarReporterLogAndResult(t *testing.T) {
	var buf bytes.Buffer
	b := NewBarReporter(&buf)

	b.Update(Update{Stage: StageResize, Current: 1, Total: 3, Message: "00000000-00000029"})
	b.Update(Update{Stage: StageResize, Level: 1, Current: 4, Total: 30})
	b.Log(Log{Stage: StageResize, Warn: true, Line: "scene 2 failed"})
	b.Log(Log{Stage: StageResize, Line: "resized 30 frames"})
	b.Result(Result{OutputPath: "/p/remix.mp4"})

	out := buf.String()
	for _, want := range []string{"warning: scene 2 failed", "resized 30 frames\n", "Saved: /p/remix.mp4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "warning: resized") {
		t.Errorf("plain log line flagged as warning:\n%s", out)
	}
}

func TestBarReporterFailure(t *testing.T) {
	var buf bytes.Buffer
	b := NewBarReporter(&buf)
	b.Update(Update{Stage: StageConcat})
	b.Result(Result{Err: errors.New("ffmpeg exited 1")})
	if !strings.Contains(buf.String(), "failed: ffmpeg exited 1") {
		t.Fatalf("output = %q", buf.String())
	}
	if strings.Contains(buf.String(), "Saved:") {
		t.Fatalf("failure reported a saved file: %q", buf.String())
	}
}

func TestUpdatePercent(t *testing.T) {
	tests := []struct {
		u    Update
		want float64
	}{
		{Update{Current: 1, Total: 4}, 25},
		{Update{Current: 9, Total: 4}, 100},
		{Update{Current: 3}, -1},
	}
	for _, tt := range tests {
		if got := tt.u.Percent(); got != tt.want {
			t.Errorf("Percent(%+v) = %v, want %v", tt.u, got, tt.want)
		}
	}
}
