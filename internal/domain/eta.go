package domain

import "time"

// EstimateWait returns the expected seconds until a waiting token at the
// given 1-based position is admitted, assuming batchSize admissions every
// interval. It returns nil when the inputs cannot produce an estimate.
func EstimateWait(position int64, batchSize int, interval time.Duration) *int64 {
	if position < 1 || batchSize < 1 || interval <= 0 {
		return nil
	}
	ahead := position - 1

	// ceil(ahead / (batchSize / intervalSec)) in integer milliseconds
	intervalMs := interval.Milliseconds()
	if intervalMs < 1 {
		intervalMs = 1
	}
	num := ahead * intervalMs
	den := int64(batchSize) * 1000
	eta := (num + den - 1) / den
	return &eta
}

// CeilSeconds rounds a remaining TTL up to whole seconds. Negative or
// zero durations report zero.
func CeilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
