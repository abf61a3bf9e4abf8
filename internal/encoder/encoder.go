// Package encoder drives ffmpeg for everything the pipeline writes as media:
// source frame rendering, per-scene video and audio clips, muxing,
// concatenation, labeled renders and GIF thumbnails.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"remixer/internal/logging"
	"remixer/internal/progress"
	"remixer/internal/util"
)

// Encoder runs ffmpeg through a CmdRunner.
type Encoder struct {
	Runner   util.CmdRunner
	FFmpeg   string
	Codec    string
	Log      *log.Logger
	Reporter progress.Reporter
}

// New creates an Encoder. A nil runner uses real subprocesses.
func New(runner util.CmdRunner, ffmpegPath string, logger *log.Logger, rep progress.Reporter) *Encoder {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	return &Encoder{
		Runner:   runner,
		FFmpeg:   ffmpegPath,
		Codec:    "libx264",
		Log:      logging.WithComponent(logger, "ffmpeg"),
		Reporter: progress.OrNop(rep),
	}
}

// Run executes ffmpeg with args. When stage is set the
// -progress stream on stdout is turned into inner-level updates.
func (e *Encoder) Run(ctx context.Context, stage progress.Stage, args []string, totalFrames int) (util.CmdResult, error) {
	if e.FFmpeg == "" {
		return util.CmdResult{}, errors.New("ffmpeg path is required")
	}
	var ps ProgressState
	spec := util.CmdSpec{
		Path: e.FFmpeg,
		Args: args,
		Echo: func(s string) { e.Log.Debug("exec", "cmd", s) },
	}
	if stage != "" {
		spec.StdoutLine = func(line string) {
			if u, ok := ps.UpdateFromLine(line, stage, totalFrames); ok {
				e.Reporter.Update(u)
			}
		}
	}
	res, err := e.Runner.Run(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if tail := util.LastLines(res.Stderr, 5); tail != "" {
			return res, fmt.Errorf("ffmpeg failed: %w: %s", err, tail)
		}
		return res, fmt.Errorf("ffmpeg failed: %w", err)
	}
	return res, nil
}

// RenderFrames decodes video into dir/source<idx>.png at fps with the given
// index width.
func (e *Encoder) RenderFrames(ctx context.Context, video string, fps float64, deinterlace bool, dir string, width, expected int) error {
	if err := util.EnsureDir(dir); err != nil {
		return err
	}
	pattern := filepath.Join(dir, fmt.Sprintf("source%%0%dd.png", width))
	_, err := e.Run(ctx, progress.StageRender, BuildRenderArgs(video, fps, deinterlace, pattern, true), expected)
	return err
}

// linkSequence hard-links frames into a temp dir as frame%08d.png so ffmpeg
// sees a gapless sequence starting at 0. The caller removes the returned dir.
func linkSequence(frames []string) (string, error) {
	tmp, err := os.MkdirTemp("", "remixer-seq-*")
	if err != nil {
		return "", err
	}
	for i, f := range frames {
		if err := util.LinkOrCopy(f, filepath.Join(tmp, fmt.Sprintf(FramePattern, i))); err != nil {
			os.RemoveAll(tmp)
			return "", err
		}
	}
	return tmp, nil
}

// EncodeFrames encodes the PNG frames of dir at fps into out (no audio).
func (e *Encoder) EncodeFrames(ctx context.Context, dir string, fps float64, quality int, out string) (string, error) {
	frames, err := util.ListFiles(dir, ".png")
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames in %s", dir)
	}
	seq, err := linkSequence(frames)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(seq)
	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return "", fmt.Errorf("ensure output dir: %w", err)
	}
	args := BuildEncodeFramesArgs(filepath.Join(seq, FramePattern), fps, e.Codec, quality, out, true)
	if _, err := e.Run(ctx, progress.StageVideo, args, len(frames)); err != nil {
		_ = util.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}

// SliceAudio cuts [start,end) seconds of source into out.
func (e *Encoder) SliceAudio(ctx context.Context, source string, start, end float64, format, out string) (string, error) {
	if end <= start {
		return "", fmt.Errorf("empty audio slice %.3f-%.3f", start, end)
	}
	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return "", err
	}
	if _, err := e.Run(ctx, "", BuildSliceAudioArgs(source, start, end, format, out), 0); err != nil {
		_ = util.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}

// ChangeTempo rewrites in to out with the atempo filter chain for tempo.
func (e *Encoder) ChangeTempo(ctx context.Context, in string, tempo float64, format, out string) (string, error) {
	filter, ok := AtempoChain(tempo)
	if !ok {
		return "", fmt.Errorf("unsupported audio tempo %g", tempo)
	}
	if filter == "" {
		return out, util.CopyFile(in, out)
	}
	if _, err := e.Run(ctx, "", BuildTempoArgs(in, filter, format, out), 0); err != nil {
		_ = util.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}

// SilentAudio fabricates a silent track of seconds at sampleRate.
func (e *Encoder) SilentAudio(ctx context.Context, sampleRate int, seconds float64, format, out string) (string, error) {
	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return "", err
	}
	if _, err := e.Run(ctx, "", BuildSilentAudioArgs(sampleRate, seconds, format, out), 0); err != nil {
		_ = util.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}

// ComposeAudioVideo muxes video and audio into out.
func (e *Encoder) ComposeAudioVideo(ctx context.Context, video, audio, out string, outputOptions []string) (string, error) {
	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return "", err
	}
	if _, err := e.Run(ctx, "", BuildComposeArgs(video, audio, out, outputOptions), 0); err != nil {
		_ = util.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}

// ConcatVideos joins paths into out through a temporary concat list.
func (e *Encoder) ConcatVideos(ctx context.Context, paths []string, out string) (string, error) {
	if len(paths) == 0 {
		return "", errors.New("nothing to concatenate")
	}
	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return "", err
	}
	list, err := os.CreateTemp(filepath.Dir(out), ".concat-*.txt")
	if err != nil {
		return "", err
	}
	listPath := list.Name()
	defer os.Remove(listPath)
	if _, err := list.WriteString(ConcatList(paths)); err != nil {
		list.Close()
		return "", err
	}
	if err := list.Close(); err != nil {
		return "", err
	}
	if _, err := e.Run(ctx, "", BuildConcatArgs(listPath, out), 0); err != nil {
		_ = util.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}

// DrawLabel re-encodes in with a text overlay into out.
func (e *Encoder) DrawLabel(ctx context.Context, in, text string, style LabelStyle, quality int, out string) (string, error) {
	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return "", err
	}
	args := BuildFilterVideoArgs(in, DrawtextFilter(text, style), e.Codec, quality, out)
	if _, err := e.Run(ctx, "", args, 0); err != nil {
		_ = util.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}

// GIF renders the frames of dir into an animated GIF at out.
func (e *Encoder) GIF(ctx context.Context, dir string, fps float64, gifFPS int, scale float64, out string) (string, error) {
	frames, err := util.ListFiles(dir, ".png")
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames in %s", dir)
	}
	seq, err := linkSequence(frames)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(seq)
	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return "", err
	}
	if _, err := e.Run(ctx, "", BuildGIFArgs(filepath.Join(seq, FramePattern), fps, gifFPS, scale, out), 0); err != nil {
		_ = util.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}
