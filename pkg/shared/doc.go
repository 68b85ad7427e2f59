// Package shared arbitrates access to the single network stack.
//
// A Manager takes ownership of a netstack.Stack and hands out Proxy values
// to every protocol client. All proxies alias the same stack; each call is
// routed through a non-reentrancy guard. The device path is cooperative and
// single-goroutine, so the guard never waits: overlapping use of the stack is
// a programming error and panics with a *ContentionError.
package shared
