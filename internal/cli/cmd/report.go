package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"remixer/internal/pipeline"
	"remixer/internal/project"
	"remixer/internal/report"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare the project descriptor with what is on disk",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			root, err := a.projectPath()
			if err != nil {
				return err
			}
			d, err := project.Load(filepath.Join(root, project.DescriptorName))
			if err != nil {
				return err
			}
			warnings, err := project.IntegrityCheck(d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if len(warnings) == 0 {
				fmt.Fprintln(out, "No problems found")
			}
			fmt.Fprintf(out, "Progress: %s, next: %s\n", d.Progress, pipeline.Next(d))
			return nil
		}),
	}
}

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "report [ingest|settings|choices|scenes|plan]",
		Short:     "Show project reports",
		Long:      "Show one report, or the ingest, settings and choices reports when none is named.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"ingest", "settings", "choices", "scenes", "plan"},
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			which := []string{"ingest", "settings", "choices"}
			if len(args) == 1 {
				which = args
			}
			out := cmd.OutOrStdout()
			for _, w := range which {
				switch w {
				case "ingest":
					fmt.Fprintln(out, report.Ingest(d))
				case "settings":
					fmt.Fprintln(out, report.Settings(d))
				case "choices":
					fmt.Fprintln(out, report.Choices(d))
				case "scenes":
					fmt.Fprintln(out, report.Scenes(d))
				case "plan":
					g, err := a.service(nil, cmd.ErrOrStderr()).Plan(d)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, report.Plan(g))
				}
			}
			return nil
		}),
	}
}
