// Package media inspects source videos with ffprobe and runs the ffmpeg
// analysis passes the splitter relies on (scene-change and black-frame
// detection).
package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"remixer/internal/encoder"
	"remixer/internal/logging"
	"remixer/internal/util"
	"remixer/internal/util/format"
)

// ErrProbeFailed is returned when ffprobe fails or finds no video stream.
var ErrProbeFailed = errors.New("probe failed")

// Details is the probe result stored in the project descriptor.
type Details struct {
	FrameRate       float64 `yaml:"frame_rate"`
	FrameCount      int     `yaml:"frame_count"`
	DisplayWidth    int     `yaml:"display_width"`
	DisplayHeight   int     `yaml:"display_height"`
	ContentWidth    int     `yaml:"content_width"`
	ContentHeight   int     `yaml:"content_height"`
	Duration        string  `yaml:"duration"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	FileSize        int64   `yaml:"file_size"`
	HasAudio        bool    `yaml:"has_audio"`
	SampleRate      int     `yaml:"sample_rate"`
	Codec           string  `yaml:"codec"`
}

// Tool runs ffprobe and ffmpeg analysis passes.
type Tool struct {
	Runner  util.CmdRunner
	FFprobe string
	Encoder *encoder.Encoder
	Log     *log.Logger
}

// NewTool creates a Tool. The encoder supplies the ffmpeg binary and runner
// for detection passes.
func NewTool(runner util.CmdRunner, ffprobePath string, enc *encoder.Encoder, logger *log.Logger) *Tool {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	return &Tool{
		Runner:  runner,
		FFprobe: ffprobePath,
		Encoder: enc,
		Log:     logging.WithComponent(logger, "media"),
	}
}

// Probe inspects path. When the container does not record a frame count the
// video stream is decoded once to count frames.
func (t *Tool) Probe(ctx context.Context, path string) (Details, error) {
	out, err := t.ffprobe(ctx, "-v", "error", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return Details{}, err
	}
	d, err := ParseProbeJSON(out)
	if err != nil {
		return Details{}, fmt.Errorf("%w: %s: %v", ErrProbeFailed, path, err)
	}
	if d.FrameCount <= 0 {
		t.Log.Debug("frame count missing, counting frames", "path", path)
		counted, err := t.ffprobe(ctx, "-v", "error", "-count_frames", "-select_streams", "v:0",
			"-show_entries", "stream=nb_read_frames", "-print_format", "json", path)
		if err == nil {
			d.FrameCount = int(gjson.GetBytes(counted, "streams.0.nb_read_frames").Int())
		}
		if d.FrameCount <= 0 && d.FrameRate > 0 {
			d.FrameCount = int(math.Round(d.DurationSeconds * d.FrameRate))
		}
	}
	return d, nil
}

func (t *Tool) ffprobe(ctx context.Context, args ...string) ([]byte, error) {
	if t.FFprobe == "" {
		return nil, fmt.Errorf("%w: ffprobe path is required", ErrProbeFailed)
	}
	res, err := t.Runner.Run(ctx, util.CmdSpec{
		Path:          t.FFprobe,
		Args:          args,
		CaptureStdout: true,
		Echo:          func(s string) { t.Log.Debug("exec", "cmd", s) },
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrProbeFailed, err, util.LastLines(res.Stderr, 3))
	}
	return res.Stdout, nil
}

// ParseProbeJSON extracts Details from ffprobe -show_format -show_streams JSON.
func ParseProbeJSON(data []byte) (Details, error) {
	if !gjson.ValidBytes(data) {
		return Details{}, errors.New("invalid ffprobe json")
	}
	video := gjson.GetBytes(data, `streams.#(codec_type=="video")`)
	if !video.Exists() {
		return Details{}, errors.New("no video stream")
	}
	var d Details
	d.Codec = video.Get("codec_name").String()
	d.FrameRate = ParseRate(video.Get("r_frame_rate").String())
	if d.FrameRate <= 0 {
		d.FrameRate = ParseRate(video.Get("avg_frame_rate").String())
	}
	d.ContentWidth = int(video.Get("width").Int())
	d.ContentHeight = int(video.Get("height").Int())
	num, den := parseRatio(video.Get("sample_aspect_ratio").String(), ":")
	d.DisplayWidth = d.ContentWidth
	if num > 0 && den > 0 {
		d.DisplayWidth = int(math.Round(float64(d.ContentWidth) * num / den))
	}
	d.DisplayHeight = d.ContentHeight
	d.FrameCount = int(video.Get("nb_frames").Int())

	d.DurationSeconds = gjson.GetBytes(data, "format.duration").Float()
	if d.DurationSeconds <= 0 {
		d.DurationSeconds = video.Get("duration").Float()
	}
	d.Duration = format.HMS(d.DurationSeconds)
	d.FileSize = gjson.GetBytes(data, "format.size").Int()

	audio := gjson.GetBytes(data, `streams.#(codec_type=="audio")`)
	if audio.Exists() {
		d.HasAudio = true
		d.SampleRate = int(audio.Get("sample_rate").Int())
	}
	return d, nil
}

// ParseRate converts "30000/1001" or "25" into frames per second.
func ParseRate(s string) float64 {
	num, den := parseRatio(s, "/")
	if den == 0 {
		return 0
	}
	return num / den
}

func parseRatio(s, sep string) (float64, float64) {
	a, b, found := strings.Cut(strings.TrimSpace(s), sep)
	num, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, 0
	}
	if !found {
		return num, 1
	}
	den, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, 0
	}
	return num, den
}
