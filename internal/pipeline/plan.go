package pipeline

import (
	"fmt"

	"remixer/internal/project"
)

// StepError is returned when a step runs before the steps it depends on.
type StepError struct {
	Step string
	Need project.Progress
	Have project.Progress
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s needs the project at %s or later, it is at %s", e.Step, e.Need, e.Have)
}

func requireStep(d *project.Descriptor, need project.Progress, step string) error {
	if !d.Progress.AtLeast(need) {
		return &StepError{Step: step, Need: need, Have: d.Progress}
	}
	return nil
}

// advance moves progress forward to p; it never moves it back.
func advance(d *project.Descriptor, p project.Progress) {
	if d.Progress.Rank() < p.Rank() {
		d.Progress = p
	}
}

// Next names the step an operator resumes at.
func Next(d *project.Descriptor) string {
	switch d.Progress {
	case project.ProgressHome:
		return "settings"
	case project.ProgressSettings:
		return "setup"
	case project.ProgressSetup, project.ProgressChoose:
		return "choose scenes, then compile"
	case project.ProgressCompile:
		return "process"
	case project.ProgressProcess:
		return "save"
	case project.ProgressSave:
		return "done"
	}
	return "new"
}
