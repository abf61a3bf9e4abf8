package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"remixer/internal/progress"
)

// Work is a long step the view follows. It reports through rep and its
// return value becomes the result of Run.
type Work func(ctx context.Context, rep progress.Reporter) error

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	title string
	step  *stepState

	// UI
	width, height int
	styles        Styles

	// Internal event channel used by reporter to feed tea messages
	eventCh chan tea.Msg
}

func NewModel(ctx context.Context, title string) Model {
	c, cancel := context.WithCancel(ctx)
	sty := defaultStyles()
	st := newStepState(sty)
	return Model{
		ctx:     c,
		cancel:  cancel,
		title:   title,
		step:    &st,
		styles:  sty,
		eventCh: make(chan tea.Msg, 256),
	}
}

// Reporter returns the reporter that feeds this model.
func (m Model) Reporter() progress.Reporter {
	return teaReporter{ctx: m.ctx, ch: m.eventCh}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.step.spinner.Tick, m.listenEventsCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.step.status = "Cancelling"
			m.cancel()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case updateMsg:
		m.step.apply(msg.U)
		return m, m.listenEventsCmd()
	case logMsg:
		m.step.log(msg.L)
		return m, m.listenEventsCmd()
	case resultMsg:
		r := msg.R
		if r.Err != nil {
			m.step.err = r.Err
		} else if r.OutputPath != "" {
			m.step.outputPath = r.OutputPath
			m.step.bytes = r.Bytes
		}
		return m, m.listenEventsCmd()
	case doneMsg:
		m.step.done = true
		if msg.Err != nil {
			m.step.err = msg.Err
		}
		if m.step.err != nil {
			m.step.stage = progress.StageError
			m.step.status = m.step.err.Error()
		} else {
			m.step.stage = progress.StageCompleted
			if m.step.status == "" || m.step.status == "Starting" {
				m.step.status = "Done"
			}
		}
		return m, tea.Quit
	}

	var c tea.Cmd
	m.step.spinner, c = m.step.spinner.Update(msg)
	return m, c
}

func (m Model) View() string {
	out := m.viewHeader() + "\n\n" + m.viewStep()
	if logs := m.viewLogs(); logs != "" {
		out += "\n" + logs
	}
	return out
}

func (m Model) listenEventsCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return doneMsg{Err: m.ctx.Err()}
		case msg := <-m.eventCh:
			return msg
		}
	}
}

// finish delivers the step's return value to the view.
func (m Model) finish(err error) {
	select {
	case m.eventCh <- doneMsg{Err: err}:
	case <-m.ctx.Done():
	}
}

type teaReporter struct {
	ctx context.Context
	ch  chan tea.Msg
}

func (r teaReporter) Update(u progress.Update) {
	// Stage changes and completion must arrive; plain ticks may be dropped.
	if u.Level == 0 && (u.Stage == progress.StageCompleted || u.Stage == progress.StageError || u.Current == u.Total) {
		r.send(updateMsg{U: u})
		return
	}
	select {
	case r.ch <- updateMsg{U: u}:
	default:
	}
}

func (r teaReporter) Log(l progress.Log) {
	if l.Warn {
		r.send(logMsg{L: l})
		return
	}
	select {
	case r.ch <- logMsg{L: l}:
	default:
	}
}

func (r teaReporter) Result(res progress.Result) {
	r.send(resultMsg{R: res})
}

func (r teaReporter) send(msg tea.Msg) {
	select {
	case r.ch <- msg:
	case <-r.ctx.Done():
	}
}
