package stage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"remixer/internal/adapter"
	"remixer/internal/project"
)

// ErrTooFewFrames is returned when a scene is too short for a transform.
var ErrTooFewFrames = errors.New("too few frames")

// MinFrames is the shortest input a resynthesis option accepts.
func MinFrames(opt project.ResynthOption) int {
	if opt == project.ResynthClean {
		return 2
	}
	return 3
}

// ResynthCount is how many frames resynthesis leaves of n input frames.
func ResynthCount(opt project.ResynthOption, n int) int {
	if opt == project.ResynthClean {
		return max(n-1, 0)
	}
	return max(n-2, 0)
}

// InflateCount is how many frames inflating n frames by factor yields.
func InflateCount(n, factor int) int {
	if n == 0 {
		return 0
	}
	return (n-1)*factor + 1
}

// Interleave places between[i] after frames[i] for every gap.
func Interleave(frames []string, between [][]string) []string {
	out := make([]string, 0, len(frames))
	for i, f := range frames {
		out = append(out, f)
		if i < len(between) {
			out = append(out, between[i]...)
		}
	}
	return out
}

// series applies interpolation passes to a frame list, keeping every pass's
// intermediate files under work.
type series struct {
	ip   adapter.Interpolator
	work string
	pass int
}

func (s *series) dir(i int) string {
	return filepath.Join(s.work, fmt.Sprintf("p%d-%05d", s.pass, i))
}

// clean replaces the frames with the midpoints of each adjacent pair.
func (s *series) clean(ctx context.Context, frames []string) ([]string, error) {
	s.pass++
	out := make([]string, 0, len(frames))
	for i := 0; i+1 < len(frames); i++ {
		mids, err := s.ip.Interpolate(ctx, frames[i], frames[i+1], 1, s.dir(i))
		if err != nil {
			return nil, err
		}
		out = append(out, mids...)
	}
	return out, nil
}

// replace synthesizes every inner frame from its two neighbors.
func (s *series) replace(ctx context.Context, frames []string) ([]string, error) {
	s.pass++
	out := make([]string, 0, len(frames))
	for i := 1; i+1 < len(frames); i++ {
		mids, err := s.ip.Interpolate(ctx, frames[i-1], frames[i+1], 1, s.dir(i))
		if err != nil {
			return nil, err
		}
		out = append(out, mids...)
	}
	return out, nil
}

// resynthesize runs the passes of opt.
func (s *series) resynthesize(ctx context.Context, opt project.ResynthOption, frames []string) ([]string, error) {
	if len(frames) < MinFrames(opt) {
		return nil, fmt.Errorf("%w: %s needs %d, have %d", ErrTooFewFrames, opt, MinFrames(opt), len(frames))
	}
	switch opt {
	case project.ResynthClean:
		return s.clean(ctx, frames)
	case project.ResynthScrub:
		once, err := s.clean(ctx, frames)
		if err != nil {
			return nil, err
		}
		return s.clean(ctx, once)
	case project.ResynthReplace:
		return s.replace(ctx, frames)
	}
	return nil, &project.ConfigError{Field: "resynth_option", Reason: fmt.Sprintf("unknown value %q", opt)}
}

// inflate inserts 2^splits-1 frames into every gap.
func (s *series) inflate(ctx context.Context, frames []string, splits int) ([]string, error) {
	if len(frames) < 2 {
		return nil, fmt.Errorf("%w: inflation needs 2, have %d", ErrTooFewFrames, len(frames))
	}
	s.pass++
	between := make([][]string, len(frames)-1)
	for i := range between {
		mids, err := s.ip.Interpolate(ctx, frames[i], frames[i+1], splits, s.dir(i))
		if err != nil {
			return nil, err
		}
		between[i] = mids
	}
	return Interleave(frames, between), nil
}
