package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows a progress view titled title while work runs, and returns
// work's error. Quitting the view cancels the context work runs under; Run
// still waits for work to return.
func Run(ctx context.Context, title string, work Work) error {
	m := NewModel(ctx, title)
	defer m.cancel()

	finished := make(chan error, 1)
	go func() {
		err := work(m.ctx, m.Reporter())
		finished <- err
		m.finish(err)
	}()

	prog := tea.NewProgram(m, tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil {
		m.cancel()
		<-finished
		return err
	}
	m.cancel()
	return <-finished
}
