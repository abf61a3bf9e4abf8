package adapter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"remixer/internal/util"
)

// DefaultInterpolator is a RIFE ncnn build producing one midpoint per call.
const DefaultInterpolator = "rife-ncnn-vulkan -0 {before} -1 {after} -o {output}"

// CommandInterpolator reaches deeper split levels by recursive bisection of
// a midpoint-only command.
type CommandInterpolator struct {
	commandBase
}

// NewCommandInterpolator creates an interpolator from a template using
// {before}, {after} and {output}.
func NewCommandInterpolator(runner util.CmdRunner, template string, logger *log.Logger) *CommandInterpolator {
	if template == "" {
		template = DefaultInterpolator
	}
	return &CommandInterpolator{newBase(runner, template, logger, "interpolator")}
}

// Interpolate implements Interpolator. Output files are named
// interp_<k>.png where k/2^splits is the frame's time position.
func (c *CommandInterpolator) Interpolate(ctx context.Context, before, after string, splits int, outDir string) ([]string, error) {
	if splits < 1 {
		return nil, nil
	}
	if err := util.EnsureDir(outDir); err != nil {
		return nil, err
	}
	den := 1 << splits
	frames := make([]string, den+1)
	frames[0], frames[den] = before, after
	if err := c.bisect(ctx, frames, 0, den, outDir); err != nil {
		return nil, err
	}
	return frames[1:den], nil
}

func (c *CommandInterpolator) bisect(ctx context.Context, frames []string, lo, hi int, outDir string) error {
	if hi-lo < 2 {
		return nil
	}
	mid := (lo + hi) / 2
	out := filepath.Join(outDir, fmt.Sprintf("interp_%05d.png", mid))
	if err := c.run(ctx, map[string]string{"before": frames[lo], "after": frames[hi], "output": out}); err != nil {
		return err
	}
	frames[mid] = out
	if err := c.bisect(ctx, frames, lo, mid, outDir); err != nil {
		return err
	}
	return c.bisect(ctx, frames, mid, hi, outDir)
}
