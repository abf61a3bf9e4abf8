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
	"remixer/internal/util"
)

func newNewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <video>",
		Short: "Create a project from a source video",
		Long: "Probe the source video and create a project directory for it. " +
			"Without --project the directory is created beside the video, named after it.",
		Args: cobra.ExactArgs(1),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			if err := a.requireFFmpeg(); err != nil {
				return err
			}
			fps, _ := cmd.Flags().GetFloat64("fps")
			deinterlace, _ := cmd.Flags().GetBool("deinterlace")
			audio, _ := cmd.Flags().GetString("audio")

			root := a.settings.Project
			if root == "" {
				root = defaultProjectPath(args[0])
			}
			a.attachProjectLog(root)

			var d *project.Descriptor
			err := a.run(cmd, func(ctx context.Context, svc *pipeline.Service) error {
				var err error
				d, err = svc.Ingest(ctx, pipeline.IngestRequest{
					Video:       args[0],
					Audio:       audio,
					ProjectPath: root,
					FPS:         fps,
					Deinterlace: deinterlace,
				})
				return err
			})
			if err != nil {
				return err
			}
			_ = dirs.RememberProject(d.ProjectPath)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.Ingest(d))
			fmt.Fprintf(out, "Next: %s\n", pipeline.Next(d))
			return nil
		}),
	}
	cmd.Flags().Float64("fps", 0, "Project frame rate (default: the source rate)")
	cmd.Flags().Bool("deinterlace", false, "Deinterlace while rendering source frames")
	cmd.Flags().String("audio", "", "Separate audio source (default: the video's own audio)")
	return cmd
}

func defaultProjectPath(video string) string {
	base := filepath.Base(video)
	return filepath.Join(filepath.Dir(video), util.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base))))
}
