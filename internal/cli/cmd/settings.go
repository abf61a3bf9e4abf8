package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"remixer/internal/pipeline"
	"remixer/internal/project"
	"remixer/internal/report"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change how the project is split into scenes",
		Long: "Without flags, show the split settings. Flags change the named setting only; " +
			"the result is validated before the project is saved.",
		Args: cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			if anyChanged(cmd.LocalNonPersistentFlags()) {
				if err := applySettingFlags(cmd.Flags(), d); err != nil {
					return err
				}
				if err := a.service(nil, cmd.ErrOrStderr()).ApplySettings(d); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Settings(d))
			fmt.Fprintf(cmd.OutOrStdout(), "Next: %s\n", pipeline.Next(d))
			return nil
		}),
	}
	f := cmd.Flags()
	f.String("split", "", "Split type: Scene, Break, Time or None")
	f.Float64("threshold", 0, "Scene change threshold in (0, 1]")
	f.Float64("break-duration", 0, "Minimum black break length in seconds")
	f.Float64("break-ratio", 0, "Black pixel ratio in (0, 1] that counts as a break")
	f.Int("split-time", 0, "Scene length in seconds for Time splits")
	f.Int("min-frames", 0, "Minimum frames per detected scene")
	f.Int("resize-w", 0, "Resize width")
	f.Int("resize-h", 0, "Resize height")
	f.Int("crop-w", 0, "Crop width")
	f.Int("crop-h", 0, "Crop height")
	f.Int("crop-x", -1, "Crop x offset (-1 centers)")
	f.Int("crop-y", -1, "Crop y offset (-1 centers)")
	f.String("thumbnails", "", "Thumbnail type: GIF or JPG")
	f.Bool("deinterlace", false, "Deinterlace while rendering source frames")
	f.Float64("fps", 0, "Project frame rate")
	return cmd
}

// applySettingFlags copies the flags that were set into d.
func applySettingFlags(f *pflag.FlagSet, d *project.Descriptor) error {
	var err error
	set := func(name string, apply func()) {
		if err == nil && f.Changed(name) {
			apply()
		}
	}
	str := func(name string) string { v, _ := f.GetString(name); return v }
	num := func(name string) int { v, _ := f.GetInt(name); return v }
	flt := func(name string) float64 { v, _ := f.GetFloat64(name); return v }

	set("split", func() {
		switch t := project.SplitType(str("split")); t {
		case project.SplitScene, project.SplitBreak, project.SplitTime, project.SplitNone:
			d.SplitType = t
		default:
			err = &project.ConfigError{Field: "split_type", Reason: fmt.Sprintf("unknown split type %q", t)}
		}
	})
	set("thumbnails", func() {
		switch t := project.ThumbnailType(str("thumbnails")); t {
		case project.ThumbnailGIF, project.ThumbnailJPG:
			d.ThumbnailType = t
		default:
			err = &project.ConfigError{Field: "thumbnail_type", Reason: fmt.Sprintf("unknown thumbnail type %q", t)}
		}
	})
	set("threshold", func() { d.SceneThreshold = flt("threshold") })
	set("break-duration", func() { d.BreakDuration = flt("break-duration") })
	set("break-ratio", func() { d.BreakRatio = flt("break-ratio") })
	set("split-time", func() { d.SplitTime = num("split-time") })
	set("min-frames", func() { d.MinFramesPerScene = num("min-frames") })
	set("resize-w", func() { d.ResizeW = num("resize-w") })
	set("resize-h", func() { d.ResizeH = num("resize-h") })
	set("crop-w", func() { d.CropW = num("crop-w") })
	set("crop-h", func() { d.CropH = num("crop-h") })
	set("crop-x", func() { d.CropOffsetX = num("crop-x") })
	set("crop-y", func() { d.CropOffsetY = num("crop-y") })
	set("deinterlace", func() {
		v, _ := f.GetBool("deinterlace")
		if v != d.Deinterlace {
			d.Deinterlace = v
			d.SourceFramesInvalid = true
		}
	})
	set("fps", func() {
		if v := flt("fps"); v != d.ProjectFPS {
			if v <= 0 {
				err = &project.ConfigError{Field: "project_fps", Reason: "must be positive"}
				return
			}
			d.ProjectFPS = v
			d.FrameCount = pipeline.ExpectedFrames(d.VideoDetails, v)
			d.SourceFramesInvalid = true
		}
	})
	return err
}

func anyChanged(fs *pflag.FlagSet) bool {
	changed := false
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed = true
		}
	})
	return changed
}
