package shared

import "time"

// Clock abstracts wall-clock access for components whose behavior depends on
// time (token expiry, stat rollover, sync cadence), so tests can inject a
// fake clock.
type Clock func() time.Time

// SystemClock returns the real time
func SystemClock() time.Time {
	return time.Now()
}
