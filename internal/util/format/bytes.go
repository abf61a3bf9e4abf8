package format

import "strconv"

var byteUnits = []string{"KB", "MB", "GB", "TB", "PB"}

// HumanizeBytes renders a size in binary units with one decimal, as shown
// in reports and save summaries ("1.5 MB"). Negative sizes render as "0 B".
func HumanizeBytes(b int64) string {
	if b < 1024 {
		return strconv.FormatInt(max(b, 0), 10) + " B"
	}
	v, i := float64(b)/1024, 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return strconv.FormatFloat(v, 'f', 1, 64) + " " + byteUnits[i]
}
