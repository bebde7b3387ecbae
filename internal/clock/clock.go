// Package clock provides the injectable, millisecond-precision source of
// event timestamps. Every timestamp that ends up in an event,
// and therefore in a snapshot via the Reducer, passes through a Clock.
package clock

import "time"

const layout = "2006-01-02T15:04:05.000Z"

// Clock returns the current instant as an ISO-8601 UTC string with
// millisecond precision.
type Clock interface {
	Now() string
}

// System is the real wall-clock implementation.
type System struct{}

func (System) Now() string {
	return time.Now().UTC().Format(layout)
}

// Fixed is a test Clock that always returns the same instant, or advances
// when Advance is called. Not safe for concurrent use without external
// synchronization, matching how tests typically drive it from one
// goroutine.
type Fixed struct {
	t time.Time
}

// NewFixed creates a Fixed clock starting at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t.UTC()}
}

func (f *Fixed) Now() string {
	return f.t.Format(layout)
}

// Advance moves the clock forward by d and returns the new instant string.
func (f *Fixed) Advance(d time.Duration) string {
	f.t = f.t.Add(d)
	return f.Now()
}

// Parse parses a timestamp produced by Now back into a time.Time.
func Parse(s string) (time.Time, error) {
	return time.Parse(layout, s)
}

// BumpIfNotAfter returns a timestamp guaranteed to be strictly later than
// last: either candidate unchanged if it already is, or last+1ms. This is
// the monotonicity guard that keeps a task's event order matching its
// timestamp order even when the wall clock doesn't advance between two
// appends in the same millisecond.
func BumpIfNotAfter(candidate, last string) string {
	if last == "" {
		return candidate
	}
	ct, err1 := Parse(candidate)
	lt, err2 := Parse(last)
	if err1 != nil || err2 != nil {
		return candidate
	}
	if ct.After(lt) {
		return candidate
	}
	return lt.Add(time.Millisecond).Format(layout)
}
