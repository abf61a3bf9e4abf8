package encoder

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"remixer/internal/util/format"
)

// FramePattern is the printf pattern of the temporary resequenced frames fed to ffmpeg.
const FramePattern = "frame%08d.png"

func baseArgs(includeProgress bool) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if includeProgress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}
	return args
}

func fpsString(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

// BuildRenderArgs renders every frame of video at fps into pattern
// (numbered from 0), optionally deinterlacing first.
func BuildRenderArgs(video string, fps float64, deinterlace bool, pattern string, includeProgress bool) []string {
	vf := "fps=" + fpsString(fps)
	if deinterlace {
		vf = "yadif," + vf
	}
	args := baseArgs(includeProgress)
	args = append(args,
		"-i", video,
		"-vf", vf,
		"-start_number", "0",
		pattern,
	)
	return args
}

// BuildEncodeFramesArgs encodes a numbered PNG sequence to a video without audio.
func BuildEncodeFramesArgs(pattern string, fps float64, codec string, quality int, out string, includeProgress bool) []string {
	if codec == "" {
		codec = "libx264"
	}
	if quality <= 0 {
		quality = 23
	}
	args := baseArgs(includeProgress)
	args = append(args,
		"-framerate", fpsString(fps),
		"-start_number", "0",
		"-i", pattern,
		"-c:v", codec,
		"-crf", strconv.Itoa(quality),
		"-pix_fmt", "yuv420p",
		out,
	)
	return args
}

// BuildSliceAudioArgs cuts [start,end) seconds of source into out.
func BuildSliceAudioArgs(source string, start, end float64, audioFormat, out string) []string {
	args := baseArgs(false)
	args = append(args,
		"-i", source,
		"-ss", format.Seconds(start),
		"-to", format.Seconds(end),
		"-vn",
	)
	args = append(args, audioCodecArgs(audioFormat)...)
	return append(args, out)
}

// BuildTempoArgs applies an atempo filter chain to in.
func BuildTempoArgs(in, filter, audioFormat, out string) []string {
	args := baseArgs(false)
	args = append(args, "-i", in, "-filter:a", filter)
	args = append(args, audioCodecArgs(audioFormat)...)
	return append(args, out)
}

// BuildSilentAudioArgs fabricates a silent track of the given length.
func BuildSilentAudioArgs(sampleRate int, seconds float64, audioFormat, out string) []string {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	args := baseArgs(false)
	args = append(args,
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", sampleRate),
		"-t", format.Seconds(seconds),
	)
	args = append(args, audioCodecArgs(audioFormat)...)
	return append(args, out)
}

func audioCodecArgs(audioFormat string) []string {
	switch strings.ToLower(audioFormat) {
	case "wav", "":
		return []string{"-c:a", "pcm_s16le"}
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-q:a", "2"}
	case "flac":
		return []string{"-c:a", "flac"}
	default:
		return []string{"-c:a", "aac", "-b:a", "192k"}
	}
}

// BuildComposeArgs muxes a video-only and an audio-only file.
func BuildComposeArgs(video, audio, out string, outputOptions []string) []string {
	args := baseArgs(false)
	args = append(args,
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
	)
	if len(outputOptions) == 0 {
		outputOptions = []string{"-c:a", "aac", "-b:a", "192k"}
	}
	args = append(args, outputOptions...)
	return append(args, out)
}

// BuildConcatArgs concatenates the files listed in listFile without re-encoding.
func BuildConcatArgs(listFile, out string) []string {
	args := baseArgs(false)
	return append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		out,
	)
}

// ConcatList renders the concat demuxer list for paths.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// LabelStyle configures the text overlay of labeled renders.
type LabelStyle struct {
	Size     int
	Position string // top, middle or bottom
	Border   int
	FontFile string
}

// DrawtextFilter builds a drawtext filter showing text.
func DrawtextFilter(text string, style LabelStyle) string {
	size := style.Size
	if size <= 0 {
		size = 24
	}
	var y string
	switch style.Position {
	case "top":
		y = strconv.Itoa(size)
	case "middle":
		y = "(h-text_h)/2"
	default:
		y = fmt.Sprintf("h-text_h-%d", size)
	}
	parts := []string{
		"text='" + escapeDrawtext(text) + "'",
		"fontsize=" + strconv.Itoa(size),
		"fontcolor=white",
		"x=(w-text_w)/2",
		"y=" + y,
	}
	if style.Border > 0 {
		parts = append(parts, "borderw="+strconv.Itoa(style.Border), "bordercolor=black")
	}
	if style.FontFile != "" {
		parts = append(parts, "fontfile='"+escapeDrawtext(style.FontFile)+"'")
	}
	return "drawtext=" + strings.Join(parts, ":")
}

func escapeDrawtext(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)
	return r.Replace(s)
}

// BuildFilterVideoArgs re-encodes in through a video filter, copying audio.
func BuildFilterVideoArgs(in, filter, codec string, quality int, out string) []string {
	if codec == "" {
		codec = "libx264"
	}
	if quality <= 0 {
		quality = 23
	}
	args := baseArgs(false)
	return append(args,
		"-i", in,
		"-vf", filter,
		"-c:v", codec,
		"-crf", strconv.Itoa(quality),
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		out,
	)
}

// BuildGIFArgs renders a palette-optimized animated GIF from a numbered
// PNG sequence at gifFPS, scaled by scale.
func BuildGIFArgs(pattern string, fps float64, gifFPS int, scale float64, out string) []string {
	if gifFPS <= 0 {
		gifFPS = 5
	}
	if scale <= 0 {
		scale = 1
	}
	vf := fmt.Sprintf("fps=%d,scale=trunc(iw*%s/2)*2:-2:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		gifFPS, strconv.FormatFloat(scale, 'f', -1, 64))
	args := baseArgs(false)
	return append(args,
		"-framerate", fpsString(fps),
		"-start_number", "0",
		"-i", pattern,
		"-vf", vf,
		out,
	)
}

// SupportedTempos are the speed factors AtempoChain can express.
var SupportedTempos = []float64{0.125, 0.25, 0.5, 1, 2, 4, 8}

// AtempoChain decomposes tempo into chained atempo=0.5 / atempo=2.0 filters.
// ok is false for tempos outside SupportedTempos. A tempo of 1 yields "".
func AtempoChain(tempo float64) (filter string, ok bool) {
	supported := false
	for _, s := range SupportedTempos {
		if math.Abs(s-tempo) < 1e-9 {
			supported = true
			break
		}
	}
	if !supported {
		return "", false
	}
	steps := int(math.Round(math.Log2(tempo)))
	step := "atempo=2.0"
	if steps < 0 {
		step = "atempo=0.5"
		steps = -steps
	}
	parts := make([]string, steps)
	for i := range parts {
		parts[i] = step
	}
	return strings.Join(parts, ","), true
}
