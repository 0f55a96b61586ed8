package utils

import "fmt"

// FormatSeconds renders a duration in seconds as m:ss for timer displays.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// ProgressPercent is completed days over total days, clamped to [0, 100].
func ProgressPercent(lastCompletedDay, numberOfDays int) int {
	if numberOfDays <= 0 {
		return 0
	}
	pct := lastCompletedDay * 100 / numberOfDays
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
