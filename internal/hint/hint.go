// Package hint reads the processing hints carried in scene labels and
// resolves them, together with the project's stage options, into the
// concrete settings each stage uses for a scene.
package hint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/zoom"
)

// ErrBadHint is returned for hint values that cannot be interpreted.
var ErrBadHint = errors.New("invalid hint")

// Resynthesis hint values.
const (
	ResynthClean   = "C"
	ResynthScrub   = "S"
	ResynthReplace = "R"
	ResynthNone    = "N"
)

// Inflation hint modes.
const (
	ModeAudio  = "A"
	ModeSilent = "S"
	ModeNone   = "N"
)

// Hints are the parsed hints of one scene. Empty strings mean "no hint".
type Hints struct {
	Resize     zoom.Expr
	ResizeText string
	Resynth    string
	Inflate    string
	Upscale    string
}

// Parse extracts and validates the hints of a label.
func Parse(label, sep string) (Hints, error) {
	l := scene.SplitLabel(label, sep)
	var h Hints
	if v, ok := l.Hint(scene.TagResize); ok && v != "" {
		e, err := zoom.Parse(v)
		if err != nil {
			return Hints{}, fmt.Errorf("%w: resize: %v", ErrBadHint, err)
		}
		h.Resize, h.ResizeText = e, e.String()
	}
	if v, ok := l.Hint(scene.TagResynth); ok && v != "" {
		v = strings.ToUpper(v)
		switch v {
		case ResynthClean, ResynthScrub, ResynthReplace, ResynthNone:
		default:
			return Hints{}, fmt.Errorf("%w: resynthesis %q", ErrBadHint, v)
		}
		h.Resynth = v
	}
	if v, ok := l.Hint(scene.TagInflate); ok && v != "" {
		v = strings.ToUpper(v)
		if _, _, err := parseInflate(v); err != nil {
			return Hints{}, err
		}
		h.Inflate = v
	}
	if v, ok := l.Hint(scene.TagUpscale); ok && v != "" {
		h.Upscale = v
	}
	return h, nil
}

// ForScene parses the hints of a scene in x. Invalid hints are returned as
// an error naming the scene.
func ForScene(x *scene.Index, name, sep string) (Hints, error) {
	h, err := Parse(x.Label(name), sep)
	if err != nil {
		return Hints{}, fmt.Errorf("scene %s: %w", name, err)
	}
	return h, nil
}

// Empty reports whether no hint is present.
func (h Hints) Empty() bool {
	return h.ResizeText == "" && h.Resynth == "" && h.Inflate == "" && h.Upscale == ""
}

// Signature is a canonical rendering of the hints, stored after processing
// so later runs can tell when a scene's hints changed.
func (h Hints) Signature() string {
	l := scene.Label{Hints: map[string]string{}}
	if h.ResizeText != "" {
		l.Hints[scene.TagResize] = h.ResizeText
	}
	if h.Resynth != "" {
		l.Hints[scene.TagResynth] = h.Resynth
	}
	if h.Inflate != "" {
		l.Hints[scene.TagInflate] = h.Inflate
	}
	if h.Upscale != "" {
		l.Hints[scene.TagUpscale] = h.Upscale
	}
	if len(l.Hints) == 0 {
		return ""
	}
	return scene.ComposeLabel(l, scene.DefaultSeparator)
}

// ResolveResynth returns the resynthesis option for a scene and whether the
// scene is resynthesized at all. A hint overrides the project option; N
// turns it off.
func (h Hints) ResolveResynth(selected bool, option project.ResynthOption) (project.ResynthOption, bool) {
	switch h.Resynth {
	case ResynthClean:
		return project.ResynthClean, true
	case ResynthScrub:
		return project.ResynthScrub, true
	case ResynthReplace:
		return project.ResynthReplace, true
	case ResynthNone:
		return option, false
	}
	return option, selected
}

// Inflation describes how a scene's frames are multiplied and played back:
// Factor output frames per input frame, a clip frame rate of Realtime times
// the project rate, and playback Slowdown times slower than the source.
type Inflation struct {
	Factor   int
	Realtime int
	Slowdown int
	Mode     project.InflateSlow
}

// Splits is log2(Factor): the number of bisection passes.
func (i Inflation) Splits() int {
	n := 0
	for f := i.Factor; f > 1; f >>= 1 {
		n++
	}
	return n
}

// FPS is the clip frame rate for a project frame rate.
func (i Inflation) FPS(projectFPS float64) float64 {
	return projectFPS * float64(max(i.Realtime, 1))
}

// Tempo is the audio speed factor matching the slowdown.
func (i Inflation) Tempo() float64 {
	return 1 / float64(max(i.Slowdown, 1))
}

// ResolveInflation combines the project inflation settings with the scene's
// hint. Slow-motion hints multiply the project rate; other hints set the
// rate absolutely and play back in real time.
func (h Hints) ResolveInflation(selected bool, by string, slow project.InflateSlow) (Inflation, error) {
	inf := Inflation{Factor: 1, Realtime: 1, Slowdown: 1, Mode: project.SlowNo}
	if selected {
		f, ok := project.InflateFactor(by)
		if !ok {
			return inf, fmt.Errorf("%w: inflate_by_option %q", ErrBadHint, by)
		}
		inf.Factor, inf.Mode = f, slow
		if slow == project.SlowNo {
			inf.Realtime = f
		} else {
			inf.Slowdown = f
		}
	}
	if h.Inflate == "" {
		return inf, nil
	}
	factor, mode, err := parseInflate(h.Inflate)
	if err != nil {
		return inf, err
	}
	switch mode {
	case ModeAudio, ModeSilent:
		inf.Factor *= factor
		inf.Slowdown *= factor
		inf.Mode = project.SlowAudio
		if mode == ModeSilent {
			inf.Mode = project.SlowSilent
		}
	default:
		inf = Inflation{Factor: factor, Realtime: factor, Slowdown: 1, Mode: project.SlowNo}
	}
	return inf, nil
}

var inflateFactors = map[int]bool{1: true, 2: true, 4: true, 8: true, 16: true}

func parseInflate(v string) (int, string, error) {
	digits, mode := v, ModeNone
	if n := len(v); n > 0 {
		switch last := v[n-1:]; last {
		case ModeAudio, ModeSilent, ModeNone:
			digits, mode = v[:n-1], last
		}
	}
	f, err := strconv.Atoi(digits)
	if err != nil || !inflateFactors[f] {
		return 0, "", fmt.Errorf("%w: inflation %q", ErrBadHint, v)
	}
	return f, mode, nil
}

// ResolveUpscale returns the upscale factor for a scene and whether it is
// upscaled. A hinted scene in a project without upscaling gets a 1x
// cleanup pass.
func (h Hints) ResolveUpscale(selected bool, option string) (int, bool) {
	if selected {
		if f, ok := project.UpscaleFactor(option); ok {
			return f, true
		}
	}
	if h.Upscale != "" {
		return 1, true
	}
	return 0, false
}
