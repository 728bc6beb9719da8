// Package timing formats durations for job logs.
package timing

import (
	"fmt"
	"time"
)

// Clock renders d as HH:MM:SS. Negative durations render as zero.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Since is Clock(time.Since(start)).
func Since(start time.Time) string {
	return Clock(time.Since(start))
}
