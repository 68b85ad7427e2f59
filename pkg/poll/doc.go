// Package poll defines the change signal shared by every cooperatively polled
// network user.
//
// Each client in the device main loop is serviced by calling its Update
// method. Update never blocks: it performs whatever work is immediately
// available and reports whether that work changed application-visible state.
package poll
