package domain

import (
	"strconv"
)

// FormatMode selects between a plain size label and a transfer speed label.
type FormatMode int

const (
	FormatSpeed FormatMode = iota
	FormatSize
)

var byteLabels = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count as "1.5 MB" (FormatSize) or "1.5 MB/s"
// (FormatSpeed), 1024 based and rounded to two decimals. Whole values carry
// no fraction: 2048 bytes is "2 KB", not "2.0 KB".
func FormatBytes(size int64, mode FormatMode) string {
	return FormatFloatBytes(float64(size), mode)
}

func FormatFloatBytes(size float64, mode FormatMode) string {
	const power = 1024.0
	n := 0
	for size > power && n < len(byteLabels)-1 {
		size /= power
		n++
	}

	formatted := strconv.FormatFloat(round2(size), 'f', -1, 64) + " " + byteLabels[n]
	if mode == FormatSpeed {
		return formatted + "/s"
	}
	return formatted
}

func round2(v float64) float64 {
	// shortest form: 1.5, not 1.50
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
