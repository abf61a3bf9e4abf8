package ui

import (
	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"

	"remixer/internal/progress"
)

const maxLogLines = 8

// bar is one level of progress: scenes of a step, or frames of a scene.
type bar struct {
	current, total int
	label          string
	model          bubblesprogress.Model
}

func newBar() bar {
	return bar{model: bubblesprogress.New(
		bubblesprogress.WithDefaultGradient(),
		bubblesprogress.WithWidth(40),
	)}
}

func (b bar) percent() float64 {
	return progress.Update{Current: b.current, Total: b.total}.Percent()
}

// stepState is the state of the one long step the view follows.
type stepState struct {
	stage  progress.Stage
	status string
	err    error
	done   bool

	outputPath string
	bytes      int64

	outer bar
	inner bar

	spinner spinner.Model

	logs     []progress.Log
	warnings int
}

func newStepState(styles Styles) stepState {
	sp := spinner.New()
	sp.Style = styles.Spinner
	return stepState{
		status:  "Starting",
		outer:   newBar(),
		inner:   newBar(),
		spinner: sp,
	}
}

func (s *stepState) apply(u progress.Update) {
	if u.Level > 0 {
		s.inner.current, s.inner.total, s.inner.label = u.Current, u.Total, u.Message
		return
	}
	if u.Stage != s.stage {
		s.inner = newBar()
	}
	s.stage = u.Stage
	s.outer.current, s.outer.total = u.Current, u.Total
	if u.Message != "" {
		s.status = u.Message
	}
}

func (s *stepState) log(l progress.Log) {
	if l.Warn {
		s.warnings++
	}
	if len(s.logs) >= maxLogLines {
		s.logs = s.logs[1:]
	}
	s.logs = append(s.logs, l)
}
