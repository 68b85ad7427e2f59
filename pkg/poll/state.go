package poll

// UpdateState summarizes whether a poll cycle produced a state change.
type UpdateState uint8

const (
	// NoChange indicates the poll cycle left application-visible state untouched.
	NoChange UpdateState = iota

	// Updated indicates the poll cycle changed application-visible state.
	Updated
)

// String returns a human-readable state name.
func (s UpdateState) String() string {
	switch s {
	case NoChange:
		return "NO_CHANGE"
	case Updated:
		return "UPDATED"
	default:
		return "UNKNOWN"
	}
}

// Poller is implemented by anything serviced from the main loop.
type Poller interface {
	// Update performs all immediately available work and reports
	// whether application-visible state changed.
	Update() UpdateState
}

// PollerFunc adapts a function to the Poller interface.
type PollerFunc func() UpdateState

// Update calls f.
func (f PollerFunc) Update() UpdateState {
	return f()
}

// FromBool converts a "something changed" flag into an UpdateState.
func FromBool(changed bool) UpdateState {
	if changed {
		return Updated
	}
	return NoChange
}

// Compile-time interface satisfaction check.
var _ Poller = PollerFunc(nil)
