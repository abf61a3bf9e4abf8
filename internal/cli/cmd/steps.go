package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"remixer/internal/assemble"
	"remixer/internal/pipeline"
	"remixer/internal/project"
	"remixer/internal/report"
	"remixer/internal/stage"
	"remixer/internal/util/deps"
)

func newSetupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Render source frames, split them into scenes and draw thumbnails",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			if err := a.requireFFmpeg(); err != nil {
				return err
			}
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			err = a.runLong(cmd, "setup", func(ctx context.Context, svc *pipeline.Service) error {
				return svc.Setup(ctx, d)
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

func newCompileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Move scene directories to match the keep/drop choices",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			err = a.run(cmd, func(ctx context.Context, svc *pipeline.Service) error {
				return svc.Compile(ctx, d)
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

func newProcessCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the selected frame stages over the kept scenes",
		Long: "Run resize, resynthesis, inflation and upscaling over the kept scenes. " +
			"Stage flags change the project's stage selection before running; " +
			"scene labels can enable a stage for one scene with a hint.",
		Args: cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			applyStageFlags(cmd.Flags(), d)
			svc := a.service(nil, cmd.ErrOrStderr())
			g, err := svc.Plan(d)
			if err != nil {
				return err
			}
			if plan, _ := cmd.Flags().GetBool("plan"); plan {
				if err := project.ValidateSettings(d); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Plan(g))
				return nil
			}
			if err := a.requireStageTools(g); err != nil {
				return err
			}

			var res *stage.Report
			err = a.runLong(cmd, "process", func(ctx context.Context, svc *pipeline.Service) error {
				var err error
				res, err = svc.Process(ctx, d)
				return err
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.Plan(res.Graph))
			for _, f := range res.Failures {
				fmt.Fprintf(out, "failed: %v\n", f)
			}
			if len(res.Failures) > 0 {
				fmt.Fprintln(out, "Failed scenes are dropped when the remix is saved.")
			}
			fmt.Fprintf(out, "Next: %s\n", pipeline.Next(d))
			return nil
		}),
	}
	f := cmd.Flags()
	f.Bool("resize", false, "Resize and crop frames")
	f.Bool("resynthesize", false, "Resynthesize frames")
	f.String("resynth-option", "", "Resynthesis mode: Clean, Scrub or Replace")
	f.Bool("inflate", false, "Inflate frames with interpolated ones")
	f.String("inflate-by", "", "Inflation factor: 1X, 2X, 4X, 8X or 16X")
	f.String("inflate-slow", "", "Slow motion: No, Audio or Silent")
	f.Bool("upscale", false, "Upscale frames")
	f.String("upscale-option", "", "Upscale factor: 1X, 2X, 3X or 4X")
	f.Bool("plan", false, "Show the stage plan without running it")
	return cmd
}

// applyStageFlags copies the stage flags that were set into d.
func applyStageFlags(f *pflag.FlagSet, d *project.Descriptor) {
	b := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	s := func(name string, apply func(string)) {
		if f.Changed(name) {
			v, _ := f.GetString(name)
			apply(v)
		}
	}
	b("resize", &d.Resize)
	b("resynthesize", &d.Resynthesize)
	b("inflate", &d.Inflate)
	b("upscale", &d.Upscale)
	s("resynth-option", func(v string) { d.ResynthOption = project.ResynthOption(v) })
	s("inflate-by", func(v string) { d.InflateBy = strings.ToUpper(v) })
	s("inflate-slow", func(v string) { d.InflateSlow = project.InflateSlow(v) })
	s("upscale-option", func(v string) { d.UpscaleOption = strings.ToUpper(v) })
}

// requireStageTools checks the model binaries the enabled stages call.
func (a *app) requireStageTools(g stage.Graph) error {
	if len(a.options) > 0 {
		return nil
	}
	for _, s := range g.Enabled() {
		var tmpl string
		switch s.Kind {
		case stage.Resynth, stage.Inflate:
			tmpl = a.settings.Tools.Interpolator
		case stage.Upscale:
			tmpl = a.settings.Tools.Upscaler
		default:
			continue
		}
		if _, err := deps.CommandBinary(tmpl); err != nil {
			return &ExitError{Code: ExitMissingDep, Err: fmt.Errorf("%s stage: %w", s.Kind, err)}
		}
	}
	return nil
}

func newSaveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Assemble the kept scenes into the remix video",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			if err := a.requireFFmpeg(); err != nil {
				return err
			}
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			var opts assemble.Options
			opts.Output, _ = cmd.Flags().GetString("output")
			opts.Quality, _ = cmd.Flags().GetInt("quality")
			opts.Labeled, _ = cmd.Flags().GetBool("labeled")

			var res *assemble.Result
			err = a.runLong(cmd, "save", func(ctx context.Context, svc *pipeline.Service) error {
				var err error
				res, err = svc.Save(ctx, d, opts)
				return err
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if len(res.Dropped) > 0 {
				fmt.Fprintf(out, "Dropped scenes that failed processing: %s\n", strings.Join(res.Dropped, ", "))
			}
			if len(res.Skipped) > 0 {
				fmt.Fprintf(out, "Skipped scenes: %s\n", strings.Join(res.Skipped, ", "))
			}
			fmt.Fprintf(out, "Saved: %s\n", res.Output)
			if res.Labeled != "" {
				fmt.Fprintf(out, "Labeled: %s\n", res.Labeled)
			}
			return nil
		}),
	}
	cmd.Flags().StringP("output", "o", "", "Output video path (default: the last output, else remix.<ext> in the project)")
	cmd.Flags().Int("quality", 0, "Encoder CRF (default: the project's output quality)")
	cmd.Flags().Bool("labeled", false, "Also render a copy with scene labels drawn on")
	return cmd
}
