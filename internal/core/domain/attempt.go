package domain

import "time"

// AttemptRecord tracks repeated sensitive actions (login, password reset,
// registration) for a single opaque identifier inside an open rate-limit
// window. A persisted record always has Count >= 1.
type AttemptRecord struct {
	Count          int       `json:"count"`
	FirstAttemptAt time.Time `json:"first_attempt_at"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
}

// Age reports how long ago the window was opened.
func (r AttemptRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.FirstAttemptAt)
}

// WindowExpired reports whether the record's window has elapsed. A record with
// an expired window is stale and must never be used to deny or permit.
func (r AttemptRecord) WindowExpired(now time.Time, window time.Duration) bool {
	return r.Age(now) >= window
}

// Remaining returns how many attempts are left before the limit is reached.
func (r AttemptRecord) Remaining(maxAttempts int) int {
	remaining := maxAttempts - r.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}
