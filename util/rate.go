package util

import "time"

// Rate computes the signed per-second change between two gauge readings.
func Rate(prev, curr float64, dt time.Duration) float64 {
	if dt <= 0 {
		return 0
	}
	return (curr - prev) / dt.Seconds()
}
