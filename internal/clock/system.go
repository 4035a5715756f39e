// Package clock provides the wall clock behind an interface so tests can
// substitute a fixed time source.
package clock

import "time"

// System reads the real wall clock.
type System struct{}

// NewSystem returns a System clock.
func NewSystem() *System { return &System{} }

// Now returns the current UTC time.
func (*System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. Test helper.
type Fixed struct {
	T time.Time
}

// Now returns the fixed instant.
func (f *Fixed) Now() time.Time { return f.T }
