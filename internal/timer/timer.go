package timer

import "time"

// Now returns a monotonic timestamp.
func Now() time.Time {
	return time.Now()
}

// ElapsedMs returns end-start in milliseconds with microsecond resolution.
// Sub-microsecond remainders are truncated before the division by 1000.
func ElapsedMs(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000.0
}

// Since is shorthand for ElapsedMs(start, Now()).
func Since(start time.Time) float64 {
	return ElapsedMs(start, Now())
}
