// Package discovery advertises and finds Stabilizer devices and brokers on
// the local network using mDNS/DNS-SD.
//
// # Service Types
//
//	_stabilizer._tcp         a device; TXT records carry its app name, MAC,
//	                         topic prefix and the broker it connects to
//	_stabilizer-broker._tcp  a broker accepting device and controller sessions
//
// Devices advertise under the instance name "<app>-<mac>", the same string
// that forms the last two segments of their topic prefix.
//
// Browsing aggregates the answers received on several interfaces into one
// entry per instance, merging addresses.
package discovery
