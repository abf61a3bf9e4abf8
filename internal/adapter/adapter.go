// Package adapter wraps the frame interpolation and upscaling models. Both
// are external programs configured as command templates whose {placeholders}
// are substituted per invocation.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"remixer/internal/logging"
	"remixer/internal/util"
)

// Interpolator synthesizes in-between frames.
type Interpolator interface {
	// Interpolate writes the 2^splits-1 frames evenly spaced between before
	// and after into outDir and returns them in time order.
	Interpolate(ctx context.Context, before, after string, splits int, outDir string) ([]string, error)
}

// Upscaler enlarges frames.
type Upscaler interface {
	// Upscale writes one output per input into outDir (same base names) at factor.
	Upscale(ctx context.Context, files []string, outDir string, factor int, tiling bool) ([]string, error)
}

// Template is a command line with {name} placeholders.
type Template string

// Expand splits the template into a binary and arguments, substituting vars.
func (t Template) Expand(vars map[string]string) (string, []string, error) {
	fields := strings.Fields(string(t))
	if len(fields) == 0 {
		return "", nil, errors.New("empty command template")
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		for k, v := range vars {
			f = strings.ReplaceAll(f, "{"+k+"}", v)
		}
		out[i] = f
	}
	return out[0], out[1:], nil
}

// Has reports whether the template uses placeholder name.
func (t Template) Has(name string) bool {
	return strings.Contains(string(t), "{"+name+"}")
}

type commandBase struct {
	runner   util.CmdRunner
	template Template
	log      *log.Logger
}

func (c commandBase) run(ctx context.Context, vars map[string]string, extra ...string) error {
	bin, args, err := c.template.Expand(vars)
	if err != nil {
		return err
	}
	args = append(args, extra...)
	res, err := c.runner.Run(ctx, util.CmdSpec{
		Path: bin,
		Args: args,
		Echo: func(s string) { c.log.Debug("exec", "cmd", s) },
		StderrLine: func(line string) {
			if p, ok := ParsePercent(line); ok {
				c.log.Debug("progress", "bin", bin, "percent", p)
			}
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w: %s", bin, err, util.LastLines(res.Stderr, 3))
	}
	return nil
}

func newBase(runner util.CmdRunner, template string, logger *log.Logger, component string) commandBase {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	return commandBase{runner: runner, template: Template(template), log: logging.WithComponent(logger, component)}
}
