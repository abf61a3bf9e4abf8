package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"remixer/internal/progress"
	"remixer/internal/util/format"
)

func (m Model) viewHeader() string {
	title := m.styles.Title.Render("remixer · " + m.title)
	sub := "q: quit"
	if m.step.warnings > 0 {
		sub = fmt.Sprintf("%d warning(s) • %s", m.step.warnings, sub)
	}
	return title + "\n" + m.styles.Subtitle.Render(sub)
}

func (m Model) stageStyleFor(st progress.Stage) func(...string) string {
	switch st {
	case progress.StageIngest, progress.StageRender, progress.StageSplit, progress.StageThumbnails, progress.StageCompile:
		return m.styles.StagePrep.Render
	case progress.StageResize, progress.StageResynth, progress.StageInflate, progress.StageUpscale:
		return m.styles.StageFrame.Render
	case progress.StageAudio, progress.StageVideo, progress.StageClips, progress.StageConcat:
		return m.styles.StageClip.Render
	case progress.StageCompleted:
		return m.styles.Success.Render
	case progress.StageError:
		return m.styles.Error.Render
	}
	return m.styles.StepInfo.Render
}

func (m Model) viewBar(b bar, unit string) string {
	if p := b.percent(); p >= 0 {
		return fmt.Sprintf("%s %5.1f%%  %d/%d %s", b.model.ViewAs(p/100.0), p, b.current, b.total, unit)
	}
	return m.styles.Spinner.Render(m.step.spinner.View()) + " " + m.styles.Faint.Render("working")
}

func (m Model) viewStep() string {
	s := m.step
	stage := string(s.stage)
	if stage == "" {
		stage = "starting"
	}
	lines := []string{m.stageStyleFor(s.stage)(stage)}

	switch {
	case s.done && s.err == nil:
		lines = append(lines, m.styles.Success.Render("✓ done"))
	case s.err != nil:
		lines = append(lines, m.styles.Error.Render("✗ error"))
	default:
		lines = append(lines, m.viewBar(s.outer, "scenes"))
		if s.inner.total > 0 {
			lines = append(lines, m.viewBar(s.inner, truncate(s.inner.label, 32)))
		}
	}
	lines = append(lines, m.styles.StepInfo.Render(truncate(s.status, m.lineWidth())))
	if s.outputPath != "" {
		saved := fmt.Sprintf("Saved: %s (%s)", filepath.Base(s.outputPath), format.HumanizeBytes(s.bytes))
		lines = append(lines, m.styles.Success.Render(saved))
	}
	return m.styles.Box.Render(strings.Join(lines, "\n"))
}

func (m Model) viewLogs() string {
	if len(m.step.logs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range m.step.logs {
		line := truncate(strings.TrimRight(l.Line, "\r\n"), m.lineWidth())
		if l.Warn {
			b.WriteString(m.styles.Warning.Render("! " + line))
		} else {
			b.WriteString(m.styles.Faint.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) lineWidth() int {
	if m.width > 8 {
		return m.width - 4
	}
	return 76
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
