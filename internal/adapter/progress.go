package adapter

import (
	"strconv"
	"strings"
)

// ParsePercent reads the progress lines the ncnn model builds print to
// stderr, such as "  42.50%". It reports false for any other line.
func ParsePercent(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasSuffix(line, "%") {
		return 0, false
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(line, "%")), 64)
	if err != nil || p < 0 || p > 100 {
		return 0, false
	}
	return p, true
}
