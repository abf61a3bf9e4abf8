package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// BarReporter renders progress with a single terminal bar for plain output
// (no TUI). The outer level drives the bar; inner updates only refresh the
// description.
type BarReporter struct {
	mu    sync.Mutex
	w     io.Writer
	bar   *progressbar.ProgressBar
	stage Stage
	total int
	outer string
}

// NewBarReporter writes bars to w (usually os.Stderr).
func NewBarReporter(w io.Writer) *BarReporter {
	return &BarReporter{w: w}
}

func (b *BarReporter) Update(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u.Level > 0 {
		if b.bar != nil && u.Total > 0 {
			b.bar.Describe(fmt.Sprintf("%s [%d/%d]", b.outer, u.Current, u.Total))
		}
		return
	}

	if b.bar == nil || u.Stage != b.stage || u.Total != b.total {
		b.finishLocked()
		n := u.Total
		if n <= 0 {
			n = -1 // spinner mode
		}
		b.bar = progressbar.NewOptions(n,
			progressbar.OptionSetWriter(b.w),
			progressbar.OptionSetDescription(string(u.Stage)),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(b.w) }),
		)
		b.stage = u.Stage
		b.total = u.Total
	}
	b.outer = string(u.Stage)
	if u.Message != "" {
		b.outer = string(u.Stage) + " " + u.Message
	}
	b.bar.Describe(b.outer)
	_ = b.bar.Set(u.Current)
}

func (b *BarReporter) Log(l Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Clear()
	}
	prefix := ""
	if l.Warn {
		prefix = "warning: "
	}
	fmt.Fprintf(b.w, "%s%s\n", prefix, l.Line)
}

func (b *BarReporter) Result(r Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishLocked()
	if r.Err != nil {
		fmt.Fprintf(b.w, "failed: %v\n", r.Err)
		return
	}
	if r.OutputPath != "" {
		fmt.Fprintf(b.w, "Saved: %s\n", r.OutputPath)
	}
}

func (b *BarReporter) finishLocked() {
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}
}
