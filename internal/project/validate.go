package project

import "fmt"

// ConfigError is an invalid setting, reported before anything on disk changes.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var (
	inflateByValues = map[string]int{"1X": 1, "2X": 2, "4X": 4, "8X": 8, "16X": 16}
	upscaleValues   = map[string]int{"1X": 1, "2X": 2, "3X": 3, "4X": 4}
)

// InflateFactor parses inflate_by_option ("4X" -> 4).
func InflateFactor(option string) (int, bool) {
	f, ok := inflateByValues[option]
	return f, ok
}

// UpscaleFactor parses upscale_option ("2X" -> 2).
func UpscaleFactor(option string) (int, bool) {
	f, ok := upscaleValues[option]
	return f, ok
}

// ValidateSettings checks the split, resize/crop and stage settings.
func ValidateSettings(d *Descriptor) error {
	if d.ProjectFPS <= 0 {
		return &ConfigError{"project_fps", "must be positive"}
	}
	switch d.SplitType {
	case SplitScene, SplitBreak, SplitTime, SplitNone:
	default:
		return &ConfigError{"split_type", fmt.Sprintf("unknown value %q", d.SplitType)}
	}
	if d.SplitTime < 1 {
		return &ConfigError{"split_time", "must be at least 1 second"}
	}
	if d.SceneThreshold <= 0 || d.SceneThreshold > 1 {
		return &ConfigError{"scene_threshold", "must be in (0, 1]"}
	}
	if d.BreakDuration <= 0 {
		return &ConfigError{"break_duration", "must be positive"}
	}
	if d.BreakRatio <= 0 || d.BreakRatio > 1 {
		return &ConfigError{"break_ratio", "must be in (0, 1]"}
	}
	if d.MinFramesPerScene < 1 {
		return &ConfigError{"min_frames_per_scene", "must be at least 1"}
	}
	if d.ResizeW < 0 || d.ResizeH < 0 || d.CropW < 0 || d.CropH < 0 {
		return &ConfigError{"resize/crop", "sizes cannot be negative"}
	}
	if d.CropW > d.ResizeW || d.CropH > d.ResizeH {
		return &ConfigError{"crop", fmt.Sprintf("%dx%d larger than resize %dx%d", d.CropW, d.CropH, d.ResizeW, d.ResizeH)}
	}
	switch d.ThumbnailType {
	case ThumbnailGIF, ThumbnailJPG:
	default:
		return &ConfigError{"thumbnail_type", fmt.Sprintf("unknown value %q", d.ThumbnailType)}
	}
	switch d.ResynthOption {
	case ResynthClean, ResynthScrub, ResynthReplace:
	default:
		return &ConfigError{"resynth_option", fmt.Sprintf("unknown value %q", d.ResynthOption)}
	}
	if _, ok := InflateFactor(d.InflateBy); !ok {
		return &ConfigError{"inflate_by_option", fmt.Sprintf("unknown value %q", d.InflateBy)}
	}
	switch d.InflateSlow {
	case SlowNo, SlowAudio, SlowSilent:
	default:
		return &ConfigError{"inflate_slow_option", fmt.Sprintf("unknown value %q", d.InflateSlow)}
	}
	if _, ok := UpscaleFactor(d.UpscaleOption); !ok {
		return &ConfigError{"upscale_option", fmt.Sprintf("unknown value %q", d.UpscaleOption)}
	}
	return nil
}
