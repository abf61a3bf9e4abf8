package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"remixer/internal/scene"
)

var (
	ptsTimeRe    = regexp.MustCompile(`pts_time:(\d+\.?\d*)`)
	blackStartRe = regexp.MustCompile(`black_start:(\d+\.?\d*)`)
	blackEndRe   = regexp.MustCompile(`black_end:(\d+\.?\d*)`)
)

// RenderSourceFrames renders video at fps into outDir as source<idx>.png and
// returns the index width used, wide enough for frameCount frames.
func (t *Tool) RenderSourceFrames(ctx context.Context, video string, fps float64, outDir string, deinterlace bool, frameCount, minWidth int) (int, error) {
	if t.Encoder == nil {
		return 0, errors.New("no encoder configured")
	}
	width := scene.IndexWidth(frameCount, minWidth)
	t.Log.Info("rendering source frames", "video", video, "fps", fps, "width", width)
	if err := t.Encoder.RenderFrames(ctx, video, fps, deinterlace, outDir, width, frameCount); err != nil {
		return 0, fmt.Errorf("render source frames: %w", err)
	}
	return width, nil
}

func sequenceInput(framesDir string, width int, fps float64) []string {
	return []string{
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-start_number", "0",
		"-i", filepath.Join(framesDir, fmt.Sprintf("source%%0%dd.png", width)),
	}
}

// DetectScenes runs ffmpeg's scene filter over the rendered source frames
// and returns the sorted frame indices where a new scene starts.
func (t *Tool) DetectScenes(ctx context.Context, framesDir string, width int, fps, threshold float64) ([]int, error) {
	if t.Encoder == nil {
		return nil, errors.New("no encoder configured")
	}
	args := []string{"-hide_banner", "-loglevel", "info"}
	args = append(args, sequenceInput(framesDir, width, fps)...)
	args = append(args, "-vf", fmt.Sprintf("select='gt(scene,%g)',showinfo", threshold), "-an", "-f", "null", "-")
	res, err := t.Encoder.Run(ctx, "", args, 0)
	if err != nil {
		return nil, fmt.Errorf("scene detection failed: %w", err)
	}
	frames := ParseSceneOutput(res.Stderr, fps)
	t.Log.Info("scene detection complete", "boundaries", len(frames))
	return frames, nil
}

// DetectBreaks runs ffmpeg's blackdetect filter and returns the midpoint
// frame of each black interval.
func (t *Tool) DetectBreaks(ctx context.Context, framesDir string, width int, fps, duration, ratio float64) ([]int, error) {
	if t.Encoder == nil {
		return nil, errors.New("no encoder configured")
	}
	args := []string{"-hide_banner", "-loglevel", "info"}
	args = append(args, sequenceInput(framesDir, width, fps)...)
	args = append(args, "-vf", fmt.Sprintf("blackdetect=d=%g:pic_th=%g", duration, ratio), "-an", "-f", "null", "-")
	res, err := t.Encoder.Run(ctx, "", args, 0)
	if err != nil {
		return nil, fmt.Errorf("break detection failed: %w", err)
	}
	frames := ParseBlackdetectOutput(res.Stderr, fps)
	t.Log.Info("break detection complete", "boundaries", len(frames))
	return frames, nil
}

// ParseSceneOutput converts showinfo pts_time values into frame indices.
func ParseSceneOutput(output []byte, fps float64) []int {
	var frames []int
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		m := ptsTimeRe.FindStringSubmatch(sc.Text())
		if len(m) < 2 {
			continue
		}
		pts, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		frames = append(frames, int(math.Round(pts*fps)))
	}
	return uniqueSorted(frames)
}

// ParseBlackdetectOutput converts black_start/black_end pairs into the
// midpoint frame of each interval.
func ParseBlackdetectOutput(output []byte, fps float64) []int {
	var frames []int
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		s := blackStartRe.FindStringSubmatch(line)
		e := blackEndRe.FindStringSubmatch(line)
		if len(s) < 2 || len(e) < 2 {
			continue
		}
		start, err1 := strconv.ParseFloat(s[1], 64)
		end, err2 := strconv.ParseFloat(e[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		frames = append(frames, int(math.Round((start+end)/2*fps)))
	}
	return uniqueSorted(frames)
}

func uniqueSorted(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	sort.Ints(in)
	out := []int{in[0]}
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
