// Package connection schedules reconnection attempts. Polled clients drive a
// Backoff themselves; host tools hand their dial function to a Manager.
//
// # Reconnection Strategy
//
// When a broker connection is lost or an attempt fails, the client waits
// before trying again, using exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to 1s once the broker accepted the session
//
// # Jitter
//
// To prevent every device on a bench from reconnecting in lockstep after a
// broker restart:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// A Backoff never sleeps. Schedule returns the earliest time of the next
// attempt and Ready reports whether it has come.
package connection
