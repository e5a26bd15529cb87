package syncx

import "time"

// Clock supplies the current time. Injected everywhere the sync engine reads
// wall-clock time so tests can simulate concurrent-checkpoint races.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now in UTC.
func SystemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}

// FixedClock returns a Clock frozen at t. Test helper.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// RFC3339 formats a time as an RFC3339 string in UTC.
func RFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
