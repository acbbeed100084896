package reliability

import "time"

// ExponentialBackoff computes a deterministic capped backoff duration. The
// monitor stretches its tick delay with this after consecutive cycle
// failures so a down backend is not hammered at the normal poll rate.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
