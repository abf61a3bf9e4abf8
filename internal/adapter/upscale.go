package adapter

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"

	"remixer/internal/util"
)

// DefaultUpscaler is a Real-ESRGAN ncnn build.
const DefaultUpscaler = "realesrgan-ncnn-vulkan -i {input} -o {output} -s {scale}"

// CommandUpscaler runs an upscaler template once per file.
type CommandUpscaler struct {
	commandBase
	TileSize int
}

// NewCommandUpscaler creates an upscaler from a template using {input},
// {output}, {scale} and optionally {tile}.
func NewCommandUpscaler(runner util.CmdRunner, template string, tileSize int, logger *log.Logger) *CommandUpscaler {
	if template == "" {
		template = DefaultUpscaler
	}
	return &CommandUpscaler{commandBase: newBase(runner, template, logger, "upscaler"), TileSize: tileSize}
}

// Upscale implements Upscaler. With tiling on, the tile size is passed as
// {tile} or, when the template has no such placeholder, as "-t <size>".
func (u *CommandUpscaler) Upscale(ctx context.Context, files []string, outDir string, factor int, tiling bool) ([]string, error) {
	if err := util.EnsureDir(outDir); err != nil {
		return nil, err
	}
	tile := "0"
	if tiling && u.TileSize > 0 {
		tile = strconv.Itoa(u.TileSize)
	}
	var extra []string
	if tiling && u.TileSize > 0 && !u.template.Has("tile") {
		extra = []string{"-t", tile}
	}
	outs := make([]string, 0, len(files))
	for _, f := range files {
		out := filepath.Join(outDir, filepath.Base(f))
		vars := map[string]string{
			"input":  f,
			"output": out,
			"scale":  strconv.Itoa(factor),
			"tile":   tile,
		}
		if err := u.run(ctx, vars, extra...); err != nil {
			return outs, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}
