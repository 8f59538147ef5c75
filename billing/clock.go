package billing

import "time"

// Clock abstracts "now" so the closing sweep and current-period lookups are
// deterministic under test. Production code uses SystemClock; tests inject a
// fixed implementation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock { return systemClock{} }
