package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"remixer/internal/dirs"
	"remixer/internal/pipeline"
	"remixer/internal/project"
	"remixer/internal/report"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Copy the kept scenes into a new project",
		Args:  cobra.ExactArgs(1),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			var nd *project.Descriptor
			err = a.run(cmd, func(ctx context.Context, svc *pipeline.Service) error {
				var err error
				nd, err = svc.Export(ctx, d, args[0])
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d scene(s) to %s\n", nd.Len(), nd.ProjectPath)
			return nil
		}),
	}
}

func newRecoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Rebuild the frames of every scene from the source video",
		Long: "Re-render the source video and rebuild every scene directory from it, " +
			"keeping the scene choices and labels. Stage outputs and clips are purged.",
		Args: cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			if err := a.requireFFmpeg(); err != nil {
				return err
			}
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			err = a.runLong(cmd, "recover", func(ctx context.Context, svc *pipeline.Service) error {
				return svc.Recover(ctx, d)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Choices(d))
			fmt.Fprintf(cmd.OutOrStdout(), "Next: %s\n", pipeline.Next(d))
			return nil
		}),
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <project>",
		Short: "Merge the scenes of another project of the same source",
		Args:  cobra.ExactArgs(1),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			var added []string
			err = a.run(cmd, func(ctx context.Context, svc *pipeline.Service) error {
				var err error
				added, err = svc.Import(ctx, d, args[0])
				return err
			})
			if err != nil {
				return err
			}
			if len(added) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No new scenes")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d scene(s): %s\n", len(added), strings.Join(added, ", "))
			return nil
		}),
	}
}

func newPortCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "port <old> <new>",
		Short: "Rewrite the paths of a project moved from old to new",
		Long: "Rewrite every path in the project at <new> that still points under <old>. " +
			"The previous descriptor is kept as a backup inside the project.",
		Args: cobra.ExactArgs(2),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			oldRoot, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			newRoot, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			a.attachProjectLog(newRoot)
			d, err := a.service(nil, cmd.ErrOrStderr()).Port(oldRoot, newRoot)
			if err != nil {
				return err
			}
			_ = dirs.RememberProject(d.ProjectPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Ported %s\n", d.ProjectPath)
			return nil
		}),
	}
}

func newPurgeCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-clean",
		Short: "Permanently delete the purge directories of the project",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			n, err := a.service(nil, cmd.ErrOrStderr()).PurgeClean(d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d purge director(ies)\n", n)
			return nil
		}),
	}
}
