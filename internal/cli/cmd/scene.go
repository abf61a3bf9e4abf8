package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"remixer/internal/pipeline"
	"remixer/internal/project"
	"remixer/internal/report"
	"remixer/internal/scene"
)

func newSceneCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scene",
		Short: "List, choose, label and edit scenes",
		Long: "Scenes are referred to by position (as shown by 'scene list'), by name, " +
			"or by '.' for the scene under the cursor.",
	}
	cmd.AddCommand(
		newSceneListCmd(a),
		newSceneStateCmd(a, "keep", scene.Keep),
		newSceneStateCmd(a, "drop", scene.Drop),
		newSceneLabelCmd(a),
		newSceneMoveCmd(a, "goto <scene>", "Move the cursor to a scene", cobra.ExactArgs(1)),
		newSceneMoveCmd(a, "next", "Move the cursor to the next scene", cobra.NoArgs),
		newSceneMoveCmd(a, "prev", "Move the cursor to the previous scene", cobra.NoArgs),
		newSceneSplitCmd(a),
		newSceneMergeCmd(a),
		newSceneCoalesceCmd(a),
		newSceneForceDropCmd(a),
	)
	return cmd
}

// resolveScene turns a position, a name or "." into a position and name.
func resolveScene(d *project.Descriptor, ref string) (int, string, error) {
	if ref == "." {
		name := d.CurrentName()
		if name == "" {
			return 0, "", fmt.Errorf("%w: the project has no scenes", scene.ErrUnknownScene)
		}
		return d.Position(name), name, nil
	}
	if i, err := strconv.Atoi(ref); err == nil {
		if i < 0 || i >= d.Len() {
			return 0, "", fmt.Errorf("%w: position %d of %d", scene.ErrUnknownScene, i, d.Len())
		}
		return i, d.Names[i], nil
	}
	if i := d.Position(ref); i >= 0 {
		return i, ref, nil
	}
	return 0, "", fmt.Errorf("%w: %s", scene.ErrUnknownScene, ref)
}

func newSceneListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenes with their state and label",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Scenes(d))
			return nil
		}),
	}
}

func newSceneStateCmd(a *app, verb string, st scene.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb + " [scene...]",
		Short: fmt.Sprintf("Mark scenes %s", st),
		Long: fmt.Sprintf("Mark scenes %s. After compile the scene directory moves at once "+
			"and the project returns to the compile step.", st),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			names, err := sceneArgs(cmd, d, args)
			if err != nil {
				return err
			}
			svc := a.service(nil, cmd.ErrOrStderr())
			for _, name := range names {
				if err := svc.SetState(d, name, st); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Choices(d))
			return nil
		}),
	}
	cmd.Flags().Bool("all", false, "Apply to every scene")
	return cmd
}

// sceneArgs resolves the scene arguments; no arguments means the cursor.
func sceneArgs(cmd *cobra.Command, d *project.Descriptor, args []string) ([]string, error) {
	if all, _ := cmd.Flags().GetBool("all"); all {
		return append([]string(nil), d.Names...), nil
	}
	if len(args) == 0 {
		args = []string{"."}
	}
	names := make([]string, 0, len(args))
	for _, ref := range args {
		_, name, err := resolveScene(d, ref)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func newSceneLabelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "label <scene> [label]",
		Short: "Set or clear a scene label",
		Long: "Set a scene label. A label may start with processing hints in braces, " +
			"for example '{R 2X} {I 4X} title'. Without a label the label is cleared.",
		Args: cobra.RangeArgs(1, 2),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			_, name, err := resolveScene(d, args[0])
			if err != nil {
				return err
			}
			label := ""
			if len(args) == 2 {
				label = strings.TrimSpace(args[1])
			}
			if err := a.service(nil, cmd.ErrOrStderr()).SetLabel(d, name, label); err != nil {
				return err
			}
			if label == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: label cleared\n", name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, label)
			}
			return nil
		}),
	}
}

func newSceneMoveCmd(a *app, use, short string, args cobra.PositionalArgs) *cobra.Command {
	verb := strings.Fields(use)[0]
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			kept, _ := cmd.Flags().GetBool("kept")
			switch verb {
			case "goto":
				i, _, err := resolveScene(d, args[0])
				if err != nil {
					return err
				}
				d.Jump(i)
			case "next":
				if kept {
					d.NextKept()
				} else {
					d.Next()
				}
			case "prev":
				if kept {
					d.PrevKept()
				} else {
					d.Prev()
				}
			}
			if err := project.Save(d); err != nil {
				return err
			}
			name := d.CurrentName()
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s %s %s\n", d.Current, name, d.State(name), d.Label(name))
			return nil
		}),
	}
	if verb != "goto" {
		cmd.Flags().Bool("kept", false, "Skip dropped scenes")
	}
	return cmd
}

func newSceneSplitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "split <scene> <percent>",
		Short: "Split a scene in two at a percentage of its frames",
		Args:  cobra.ExactArgs(2),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			if err := a.requireFFmpeg(); err != nil {
				return err
			}
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			i, _, err := resolveScene(d, args[0])
			if err != nil {
				return err
			}
			pct, err := strconv.ParseFloat(strings.TrimSuffix(args[1], "%"), 64)
			if err != nil {
				return &project.ConfigError{Field: "split percent", Reason: err.Error()}
			}
			var lower, upper string
			err = a.run(cmd, func(ctx context.Context, svc *pipeline.Service) error {
				var err error
				lower, upper, err = svc.Ops(d).Split(ctx, i, pct)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Split into %s and %s\n", lower, upper)
			return nil
		}),
	}
}

func newSceneMergeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <first> <last>",
		Short: "Merge a contiguous run of scenes into one",
		Args:  cobra.ExactArgs(2),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			if err := a.requireFFmpeg(); err != nil {
				return err
			}
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			i, _, err := resolveScene(d, args[0])
			if err != nil {
				return err
			}
			j, _, err := resolveScene(d, args[1])
			if err != nil {
				return err
			}
			var merged string
			err = a.run(cmd, func(ctx context.Context, svc *pipeline.Service) error {
				var err error
				merged, err = svc.Ops(d).Merge(ctx, i, j)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged into %s\n", merged)
			return nil
		}),
	}
}

func newSceneCoalesceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coalesce",
		Short: "Merge every run of adjacent kept scenes",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, _ []string) error {
			dry, _ := cmd.Flags().GetBool("dry-run")
			if !dry {
				if err := a.requireFFmpeg(); err != nil {
					return err
				}
			}
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			var merged []string
			err = a.run(cmd, func(ctx context.Context, svc *pipeline.Service) error {
				var err error
				merged, err = svc.Ops(d).Coalesce(ctx, dry)
				return err
			})
			if err != nil {
				return err
			}
			verb := "Merged"
			if dry {
				verb = "Would merge"
			}
			for _, name := range merged {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, name)
			}
			return nil
		}),
	}
	cmd.Flags().Bool("dry-run", false, "Show the merged scenes without merging")
	return cmd
}

func newSceneForceDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "force-drop <scene>",
		Short: "Drop a scene and purge everything processed from it",
		Args:  cobra.ExactArgs(1),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			_, name, err := resolveScene(d, args[0])
			if err != nil {
				return err
			}
			if err := a.service(nil, cmd.ErrOrStderr()).Ops(d).ForceDrop(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s dropped\n", name)
			return nil
		}),
	}
}
