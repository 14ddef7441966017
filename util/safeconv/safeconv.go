package safeconv

import "math"

// Int64ToInt converts int64 to int with clamping into [MinInt, MaxInt].
func Int64ToInt(v int64) int {
	if v > math.MaxInt {
		return math.MaxInt
	}
	if v < math.MinInt {
		return math.MinInt
	}
	return int(v)
}
