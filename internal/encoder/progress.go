package encoder

import (
	"strconv"
	"strings"

	"remixer/internal/progress"
)

// ProgressState tracks ffmpeg's -progress key=value stream across lines.
type ProgressState struct {
	Frame     int
	OutTimeMs int64
	SpeedStr  string
	TotalSize int64
}

// UpdateFromLine updates the state from one progress line and returns an
// inner-level update when a "progress=" marker closes a block.
// totalFrames is 0 when unknown.
func (ps *ProgressState) UpdateFromLine(line string, stage progress.Stage, totalFrames int) (u progress.Update, ok bool) {
	key, val, found := strings.Cut(line, "=")
	if !found {
		return progress.Update{}, false
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "frame":
		if v, err := strconv.Atoi(val); err == nil {
			ps.Frame = v
		}
	case "out_time_ms":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			ps.OutTimeMs = v
		}
	case "speed":
		ps.SpeedStr = val
	case "total_size":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			ps.TotalSize = v
		}
	case "progress":
		current := ps.Frame
		if totalFrames > 0 && current > totalFrames {
			current = totalFrames
		}
		if val == "end" && totalFrames > 0 {
			current = totalFrames
		}
		msg := "ffmpeg"
		if ps.SpeedStr != "" && ps.SpeedStr != "N/A" {
			msg = "ffmpeg " + ps.SpeedStr
		}
		return progress.Update{
			Stage:   stage,
			Level:   1,
			Current: current,
			Total:   totalFrames,
			Message: msg,
		}, true
	}
	return progress.Update{}, false
}
