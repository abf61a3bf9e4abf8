// Package splitter partitions the rendered source frames into scenes and
// folds scenes that are too short into their neighbors.
package splitter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/charmbracelet/log"

	"remixer/internal/framestore"
	"remixer/internal/logging"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
)

// Detector finds the first frame of each new scene in a rendered frame
// sequence.
type Detector interface {
	DetectScenes(ctx context.Context, framesDir string, width int, fps, threshold float64) ([]int, error)
	DetectBreaks(ctx context.Context, framesDir string, width int, fps, duration, ratio float64) ([]int, error)
}

// Settings are the split parameters of a project.
type Settings struct {
	Type           project.SplitType
	SceneThreshold float64
	BreakDuration  float64
	BreakRatio     float64
	SplitTime      int
	MinFrames      int
	FPS            float64
	Width          int
	FrameCount     int
}

// SettingsFrom reads the split settings of a descriptor.
func SettingsFrom(d *project.Descriptor) Settings {
	return Settings{
		Type:           d.SplitType,
		SceneThreshold: d.SceneThreshold,
		BreakDuration:  d.BreakDuration,
		BreakRatio:     d.BreakRatio,
		SplitTime:      d.SplitTime,
		MinFrames:      d.MinFramesPerScene,
		FPS:            d.ProjectFPS,
		Width:          d.IndexWidth,
		FrameCount:     d.FrameCount,
	}
}

// Splitter turns SOURCE frames into scene directories.
type Splitter struct {
	Detector Detector
	Store    *framestore.Store
	Log      *log.Logger
	Reporter progress.Reporter
}

// New creates a Splitter.
func New(det Detector, store *framestore.Store, logger *log.Logger, rep progress.Reporter) *Splitter {
	return &Splitter{
		Detector: det,
		Store:    store,
		Log:      logging.WithComponent(logger, "splitter"),
		Reporter: progress.OrNop(rep),
	}
}

// TimeStride is the frame count of one split_time period.
func TimeStride(fps float64, splitTime int) int {
	return int(math.Ceil(fps*float64(splitTime) - 1e-9))
}

// TimeBoundaries splits frameCount frames every stride frames.
func TimeBoundaries(frameCount, stride int) []int {
	if stride <= 0 {
		return nil
	}
	var out []int
	for b := stride; b < frameCount; b += stride {
		out = append(out, b)
	}
	return out
}

// Ranges computes the scene ranges for the configured split type.
func (s *Splitter) Ranges(ctx context.Context, st Settings) ([]scene.ID, error) {
	if st.FrameCount <= 0 {
		return nil, errors.New("no source frames to split")
	}
	var (
		bounds []int
		err    error
	)
	switch st.Type {
	case project.SplitScene:
		bounds, err = s.Detector.DetectScenes(ctx, s.Store.Layout.Source, st.Width, st.FPS, st.SceneThreshold)
	case project.SplitBreak:
		bounds, err = s.Detector.DetectBreaks(ctx, s.Store.Layout.Source, st.Width, st.FPS, st.BreakDuration, st.BreakRatio)
	case project.SplitTime:
		bounds = TimeBoundaries(st.FrameCount, TimeStride(st.FPS, st.SplitTime))
	case project.SplitNone:
	default:
		return nil, &project.ConfigError{Field: "split_type", Reason: fmt.Sprintf("unknown value %q", st.Type)}
	}
	if err != nil {
		return nil, err
	}
	return scene.Ranges(st.Width, st.FrameCount, bounds), nil
}

// Split computes the ranges, moves each range of source frames into its
// scene directory and consolidates scenes shorter than MinFrames.
func (s *Splitter) Split(ctx context.Context, st Settings) ([]scene.ID, error) {
	ids, err := s.Ranges(ctx, st)
	if err != nil {
		return nil, err
	}
	s.Log.Info("splitting source frames", "type", st.Type, "scenes", len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dst := filepath.Join(s.Store.Layout.Scenes, id.String())
		if err := s.Store.MoveSourceRange(st.Width, id.First, id.Last, dst); err != nil {
			return nil, fmt.Errorf("split %s: %w", id, err)
		}
		s.Reporter.Update(progress.Update{Stage: progress.StageSplit, Current: i + 1, Total: len(ids), Message: id.String()})
	}

	groups := make([]Group, len(ids))
	for i, id := range ids {
		groups[i] = Group{ID: id, State: scene.Keep}
	}
	groups, err = Consolidate(groups, st.MinFrames, DirOps(s.Store.Layout.Scenes))
	if err != nil {
		return nil, err
	}
	out := make([]scene.ID, len(groups))
	for i, g := range groups {
		out[i] = g.ID
	}
	if len(out) != len(ids) {
		s.Log.Info("consolidated short scenes", "before", len(ids), "after", len(out), "min_frames", st.MinFrames)
	}
	return out, nil
}
