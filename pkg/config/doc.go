// Package config loads the YAML configuration of the device and broker
// commands.
//
// Every field has a default, so an empty file (or none at all) yields a
// working configuration. Command-line flags override file values.
//
// Example device configuration:
//
//	app: stabilizer
//	interface: eth0
//	broker: 10.0.0.1:1883
//	telemetry_period: 10s
//	afe: [G1, G10]
//	stream_target: 10.0.0.2:9293
//	keep_alive:
//	  ping_interval: 30s
//	  pong_timeout: 5s
//	  max_missed_pongs: 3
//	backoff:
//	  initial: 1s
//	  max: 30s
package config
