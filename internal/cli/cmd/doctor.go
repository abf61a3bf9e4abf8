package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"remixer/internal/util/deps"
)

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose external dependencies (ffmpeg, ffprobe, interpolator, upscaler)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			ff, ferr := deps.FindFFmpeg(a.settings.FFmpeg)
			if ferr != nil {
				return &ExitError{Code: ExitMissingDep, Err: ferr}
			}
			fp, perr := deps.FindFFprobe(a.settings.FFprobe)
			if perr != nil {
				return &ExitError{Code: ExitMissingDep, Err: perr}
			}
			fmt.Fprintf(out, "FFmpeg:       %s\n", ff)
			fmt.Fprintf(out, "FFprobe:      %s\n", fp)

			// the models are optional; only the stages that call them need them
			for _, t := range []struct{ name, tmpl, stages string }{
				{"Interpolator", a.settings.Tools.Interpolator, "resynthesis and inflation"},
				{"Upscaler", a.settings.Tools.Upscaler, "upscaling"},
			} {
				if p, err := deps.CommandBinary(t.tmpl); err == nil {
					fmt.Fprintf(out, "%-13s %s\n", t.name+":", p)
				} else {
					fmt.Fprintf(out, "%-13s not found, %s unavailable (%v)\n", t.name+":", t.stages, err)
				}
			}
			return nil
		},
	}
}
