package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"remixer/internal/assemble"
	"remixer/internal/config"
	"remixer/internal/dirs"
	"remixer/internal/export"
	"remixer/internal/hint"
	"remixer/internal/logging"
	"remixer/internal/media"
	"remixer/internal/pipeline"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/sceneops"
	"remixer/internal/ui"
	"remixer/internal/util/deps"
	"remixer/internal/zoom"
)

var errNoProject = errors.New("no project: pass --project or create one with 'remixer new'")

// app is the state shared by every subcommand of one invocation.
type app struct {
	settings config.Settings
	logFile  *os.File

	// extra service options; tests inject a fake runner here
	options []pipeline.Option
	// terminal reports whether the progress view may be shown
	terminal func() bool
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func (a *app) useUI() bool {
	if a.settings.NoUI {
		return false
	}
	if a.terminal != nil {
		return a.terminal()
	}
	return isTerminal()
}

// projectPath is --project, or the last project used.
func (a *app) projectPath() (string, error) {
	p := a.settings.Project
	if p == "" {
		p = dirs.LastProject()
	}
	if p == "" {
		return "", &ExitError{Code: ExitCLIError, Err: errNoProject}
	}
	return filepath.Abs(p)
}

// logger writes to console and, once a project is open, to its log file.
func (a *app) logger(console io.Writer) *log.Logger {
	if a.logFile != nil {
		return logging.WithProjectLog(console, a.logFile, a.settings.Verbose)
	}
	return logging.New(console, a.settings.Verbose)
}

func (a *app) attachProjectLog(root string) {
	if a.logFile != nil {
		return
	}
	if f, err := logging.OpenProjectLog(root); err == nil {
		a.logFile = f
	}
}

func (a *app) service(rep progress.Reporter, console io.Writer) *pipeline.Service {
	ffmpeg, ffprobe := a.settings.FFmpeg, a.settings.FFprobe
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	opts := []pipeline.Option{
		pipeline.WithFFmpegPath(ffmpeg),
		pipeline.WithFFprobePath(ffprobe),
		pipeline.WithReporter(rep),
		pipeline.WithLogger(a.logger(console)),
		pipeline.WithTools(a.settings.Tools),
		pipeline.WithAssembleSettings(a.settings.Assemble),
	}
	return pipeline.NewService(append(opts, a.options...)...)
}

// requireFFmpeg resolves ffmpeg and ffprobe and pins them in the settings.
// Injected runners never reach a real binary, so tests skip the lookup.
func (a *app) requireFFmpeg() error {
	if len(a.options) > 0 {
		return nil
	}
	ff, err := deps.FindFFmpeg(a.settings.FFmpeg)
	if err != nil {
		return &ExitError{Code: ExitMissingDep, Err: err}
	}
	fp, err := deps.FindFFprobe(a.settings.FFprobe)
	if err != nil {
		return &ExitError{Code: ExitMissingDep, Err: err}
	}
	a.settings.FFmpeg, a.settings.FFprobe = ff, fp
	return nil
}

// open loads the project and remembers it for later commands.
func (a *app) open(cmd *cobra.Command) (*project.Descriptor, error) {
	root, err := a.projectPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(root, project.DescriptorName)); err != nil {
		return nil, &ExitError{Code: ExitProjectError, Err: fmt.Errorf("no project at %s", root)}
	}
	a.attachProjectLog(root)
	svc := a.service(nil, cmd.ErrOrStderr())
	d, _, err := svc.Open(root)
	if err != nil {
		return nil, err
	}
	_ = dirs.RememberProject(root)
	return d, nil
}

// run performs a step with a plain reporter on stderr.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, svc *pipeline.Service) error) error {
	rep := progress.NewBarReporter(cmd.ErrOrStderr())
	return fn(cmd.Context(), a.service(rep, cmd.ErrOrStderr()))
}

// runLong performs a long step under the progress view when stdout is a
// terminal, else under plain bars.
func (a *app) runLong(cmd *cobra.Command, title string, fn func(ctx context.Context, svc *pipeline.Service) error) error {
	if !a.useUI() {
		return a.run(cmd, fn)
	}
	// console logging would tear the view; the project log still records it
	return ui.Run(cmd.Context(), title, func(ctx context.Context, rep progress.Reporter) error {
		return fn(ctx, a.service(rep, io.Discard))
	})
}

// runE classifies the errors of a command body.
func runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return classify(err)
		}
		return nil
	}
}

// classify attaches an exit code to errors that do not carry one.
func classify(err error) error {
	var ee *ExitError
	if errors.As(err, &ee) {
		return err
	}
	var (
		loadErr *project.LoadError
		cfgErr  *project.ConfigError
		stepErr *pipeline.StepError
	)
	switch {
	case errors.As(err, &loadErr),
		errors.Is(err, project.ErrPortMismatch),
		errors.Is(err, pipeline.ErrProjectExists),
		errors.Is(err, pipeline.ErrNoSourceVideo),
		errors.Is(err, export.ErrTargetNotEmpty),
		errors.Is(err, export.ErrSourceMissing),
		errors.Is(err, export.ErrDifferentSource),
		errors.Is(err, export.ErrOverlap):
		return &ExitError{Code: ExitProjectError, Err: err}
	case errors.As(err, &cfgErr),
		errors.As(err, &stepErr),
		errors.Is(err, pipeline.ErrNothingKept),
		errors.Is(err, export.ErrNothingKept),
		errors.Is(err, assemble.ErrNothingToSave),
		errors.Is(err, scene.ErrBadName),
		errors.Is(err, scene.ErrUnknownScene),
		errors.Is(err, sceneops.ErrNonContiguousMerge),
		errors.Is(err, sceneops.ErrOutOfRangeScene),
		errors.Is(err, sceneops.ErrEmptyScene),
		errors.Is(err, sceneops.ErrSingleSceneMerge),
		errors.Is(err, hint.ErrBadHint),
		errors.Is(err, zoom.ErrSyntax):
		return &ExitError{Code: ExitCLIError, Err: err}
	case errors.Is(err, media.ErrProbeFailed):
		return &ExitError{Code: ExitProjectError, Err: err}
	}
	return &ExitError{Code: ExitProcessError, Err: err}
}
