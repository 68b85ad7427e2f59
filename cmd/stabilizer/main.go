// Command stabilizer runs a simulated Stabilizer on the host network.
//
// The device connects to a pub/sub broker, serves its settings tree under
// "dt/sinara/<app>/<mac>/settings/", publishes telemetry periodically and
// streams sample blocks over UDP to the configured target. Samples come
// from a simulated DSP loop with the DAC outputs looped back to the ADCs.
//
// Usage:
//
//	stabilizer [flags]
//
// Flags:
//
//	-config string         Configuration file path (YAML)
//	-app string            Application name (default "stabilizer")
//	-mac string            Device MAC (default: read from -interface)
//	-interface string      Host interface for MAC and link state (default "eth0")
//	-broker string         Broker address ip:port (default "127.0.0.1:1883")
//	-stream-target string  Initial stream target ip:port (default: disabled)
//	-metrics string        Serve Prometheus metrics on this address
//	-protocol-log string   Write protocol events to this CBOR file
//	-mdns                  Advertise the device over mDNS
//	-log-level string      Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Run against a local broker with a fixed MAC
//	stabilizer -mac 04-91-62-d9-7e-5f -broker 127.0.0.1:1883
//
//	# Stream to a host and export metrics
//	stabilizer -config /etc/stabilizer.yaml -stream-target 10.0.0.2:9293 -metrics :9100
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sinara-hw/stabilizer-go/internal/cli"
	"github.com/sinara-hw/stabilizer-go/pkg/config"
	"github.com/sinara-hw/stabilizer-go/pkg/processor"
)

// Flags holds the command line overrides.
type Flags struct {
	ConfigFile   string
	App          string
	MAC          string
	Interface    string
	Broker       string
	StreamTarget string
	MetricsAddr  string
	ProtocolLog  string
	MDNS         bool
	LogLevel     string
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.App, "app", "", "Application name")
	flag.StringVar(&flags.MAC, "mac", "", "Device MAC (default: read from -interface)")
	flag.StringVar(&flags.Interface, "interface", "", "Host interface for MAC and link state")
	flag.StringVar(&flags.Broker, "broker", "", "Broker address ip:port")
	flag.StringVar(&flags.StreamTarget, "stream-target", "", "Initial stream target ip:port")
	flag.StringVar(&flags.MetricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write protocol events to this CBOR file")
	flag.BoolVar(&flags.MDNS, "mdns", false, "Advertise the device over mDNS")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	level, err := cli.ParseLevel(flags.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := cli.NewLogger(os.Stderr, level)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("device stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// loadConfig reads the configuration file, if any, and applies the flags
// explicitly set on the command line.
func loadConfig() (config.DeviceConfig, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(flags.ConfigFile); err != nil {
			return config.DeviceConfig{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "app":
			cfg.App = flags.App
		case "mac":
			cfg.MAC = flags.MAC
		case "interface":
			cfg.Interface = flags.Interface
		case "broker":
			cfg.Broker = flags.Broker
		case "stream-target":
			cfg.StreamTarget = flags.StreamTarget
		case "metrics":
			cfg.MetricsAddr = flags.MetricsAddr
		case "protocol-log":
			cfg.ProtocolLog = flags.ProtocolLog
		case "mdns":
			cfg.MDNS = flags.MDNS
		}
	})

	return cfg, cfg.Validate()
}

// linkPHY watches the configured interface when the host has it, otherwise
// the link is reported up.
func linkPHY(name string, logger *slog.Logger) processor.PHY {
	if _, err := net.InterfaceByName(name); err != nil {
		logger.Warn("link state unavailable, assuming up", "interface", name, "error", err)
		return processor.AlwaysUp{}
	}
	return processor.InterfacePHY{Name: name}
}
