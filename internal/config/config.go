// Package config holds the tool-wide settings: external binaries, stage
// tool templates and output encoding. Per-project settings live in the
// project descriptor instead.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"remixer/internal/adapter"
	"remixer/internal/assemble"
	"remixer/internal/dirs"
	"remixer/internal/encoder"
	"remixer/internal/pipeline"
	"remixer/internal/scene"
	"remixer/internal/stage"
)

// Settings are the resolved tool settings.
type Settings struct {
	FFmpeg   string
	FFprobe  string
	Verbose  bool
	NoUI     bool
	Project  string
	Tools    pipeline.Tools
	Assemble assemble.Settings
}

func setDefaults() {
	viper.SetDefault("ffmpeg", "")
	viper.SetDefault("ffprobe", "")
	viper.SetDefault("interpolator", adapter.DefaultInterpolator)
	viper.SetDefault("upscaler", adapter.DefaultUpscaler)
	viper.SetDefault("use_tiling_over", stage.DefaultTilingOver)
	viper.SetDefault("tile_size", 512)
	viper.SetDefault("label_separator", scene.DefaultSeparator)
	viper.SetDefault("audio_format", "wav")
	viper.SetDefault("video_codec", "libx264")
	viper.SetDefault("video_ext", "mp4")
	viper.SetDefault("thumbnail_scale", 0.5)
	viper.SetDefault("gif_fps", 5)
	viper.SetDefault("index_width_min", scene.DefaultMinWidth)
	viper.SetDefault("font_factor", 16)
	viper.SetDefault("font_file", "")
	viper.SetDefault("label_position", "bottom")
	viper.SetDefault("label_border", 4)
	viper.SetDefault("verbose", false)
	viper.SetDefault("no_ui", false)
}

// Init wires Viper with config paths, env, defaults, and flag bindings.
// A missing config file is not an error; a named one that fails to read is.
func Init(root *cobra.Command) error {
	_ = dirs.EnsureAll()
	setDefaults()

	pf := root.PersistentFlags()
	if f := pf.Lookup("config"); f != nil && f.Value.String() != "" {
		viper.SetConfigFile(f.Value.String())
	} else {
		if cfgDir, err := dirs.ConfigDir(); err == nil {
			viper.AddConfigPath(cfgDir)
		}
		viper.SetConfigName("config") // config.{yaml|yml|json|toml}
	}

	// Environment variables: REMIXER_*
	viper.SetEnvPrefix("REMIXER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	_ = viper.BindPFlag("project", pf.Lookup("project"))
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("no_ui", pf.Lookup("no-ui"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && viper.ConfigFileUsed() != "" {
			return fmt.Errorf("read config %s: %w", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

// Load resolves the settings from flags, environment, config file and
// defaults, in that order of precedence.
func Load() (Settings, error) {
	s := Settings{
		FFmpeg:  viper.GetString("ffmpeg"),
		FFprobe: viper.GetString("ffprobe"),
		Verbose: viper.GetBool("verbose"),
		NoUI:    viper.GetBool("no_ui"),
		Project: viper.GetString("project"),
		Tools: pipeline.Tools{
			Interpolator:   viper.GetString("interpolator"),
			Upscaler:       viper.GetString("upscaler"),
			TileSize:       viper.GetInt("tile_size"),
			TilingOver:     viper.GetInt("use_tiling_over"),
			VideoCodec:     viper.GetString("video_codec"),
			ThumbnailScale: viper.GetFloat64("thumbnail_scale"),
			GIFFPS:         viper.GetInt("gif_fps"),
			IndexWidthMin:  viper.GetInt("index_width_min"),
		},
		Assemble: assemble.Settings{
			AudioFormat: viper.GetString("audio_format"),
			VideoExt:    strings.TrimPrefix(viper.GetString("video_ext"), "."),
			FontFactor:  viper.GetInt("font_factor"),
			Label: encoder.LabelStyle{
				Position: viper.GetString("label_position"),
				Border:   viper.GetInt("label_border"),
				FontFile: viper.GetString("font_file"),
			},
			Separator: viper.GetString("label_separator"),
		},
	}
	return s, s.Validate()
}

// Validate rejects settings no step could run with.
func (s Settings) Validate() error {
	switch {
	case s.Tools.TileSize <= 0:
		return fmt.Errorf("tile_size must be positive, got %d", s.Tools.TileSize)
	case s.Tools.TilingOver < 0:
		return fmt.Errorf("use_tiling_over must not be negative, got %d", s.Tools.TilingOver)
	case s.Tools.ThumbnailScale <= 0 || s.Tools.ThumbnailScale > 1:
		return fmt.Errorf("thumbnail_scale must be in (0, 1], got %g", s.Tools.ThumbnailScale)
	case s.Tools.GIFFPS <= 0:
		return fmt.Errorf("gif_fps must be positive, got %d", s.Tools.GIFFPS)
	case s.Tools.IndexWidthMin < 1:
		return fmt.Errorf("index_width_min must be at least 1, got %d", s.Tools.IndexWidthMin)
	case s.Assemble.FontFactor <= 0:
		return fmt.Errorf("font_factor must be positive, got %d", s.Assemble.FontFactor)
	case s.Assemble.AudioFormat == "" || s.Assemble.VideoExt == "":
		return fmt.Errorf("audio_format and video_ext must be set")
	case s.Assemble.Separator == "":
		return fmt.Errorf("label_separator must be set")
	}
	switch s.Assemble.Label.Position {
	case "top", "middle", "bottom":
	default:
		return fmt.Errorf("label_position must be top, middle or bottom, got %q", s.Assemble.Label.Position)
	}
	if !adapter.Template(s.Tools.Interpolator).Has("output") {
		return fmt.Errorf("interpolator template needs an {output} placeholder")
	}
	if !adapter.Template(s.Tools.Upscaler).Has("output") {
		return fmt.Errorf("upscaler template needs an {output} placeholder")
	}
	return nil
}
