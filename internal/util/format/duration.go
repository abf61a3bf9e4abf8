package format

import (
	"fmt"
	"math"
)

// HMS renders seconds as H:MM:SS.mmm, the form used in reports and in the
// probe summary.
func HMS(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms)
}

// Seconds formats a timestamp for ffmpeg -ss/-to arguments.
func Seconds(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
