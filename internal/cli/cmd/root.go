package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"remixer/internal/config"
)

const (
	ExitOK           = 0
	ExitCLIError     = 1
	ExitMissingDep   = 2
	ExitProjectError = 3
	ExitProcessError = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "remixer",
		Short: "Cut a video into scenes, choose, process and reassemble them",
		Long: "Remixer turns a source video into a project of per-scene frame directories. " +
			"Split it into scenes, keep or drop each one, optionally resize, resynthesize, " +
			"inflate or upscale the frames, and save the kept scenes back into one video.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(cmd.Root()); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			s, err := config.Load()
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			a.settings = s
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	// Persistent flags available to all subcommands
	root.PersistentFlags().StringP("project", "p", "", "Project directory (defaults to the last one used)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log debug detail including subprocess commands")
	root.PersistentFlags().Bool("no-ui", false, "Disable the progress view; use plain output")
	root.PersistentFlags().String("config", "", "Config file (default <config dir>/remixer/config.yaml)")

	root.AddCommand(newNewCmd(a))
	root.AddCommand(newSettingsCmd(a))
	root.AddCommand(newSetupCmd(a))
	root.AddCommand(newSceneCmd(a))
	root.AddCommand(newCompileCmd(a))
	root.AddCommand(newProcessCmd(a))
	root.AddCommand(newSaveCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newRecoverCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newPortCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newReportCmd(a))
	root.AddCommand(newPurgeCleanCmd(a))
	root.AddCommand(newDoctorCmd(a))
	root.AddCommand(newCompletionCmd())

	return root
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	a := &app{}
	root := newRootCmd(a)
	err := root.ExecuteContext(ctx)
	a.close()
	var ee *ExitError
	if err != nil && !errors.As(err, &ee) {
		// cobra's own usage errors
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	return err
}
