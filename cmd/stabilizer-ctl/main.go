// Command stabilizer-ctl is an interactive shell for Stabilizer devices.
//
// It connects to the pub/sub broker, changes settings, watches telemetry
// and measures or records the sample stream on this host.
//
// Usage:
//
//	stabilizer-ctl [flags]
//
// Flags:
//
//	-broker string     Broker address ip:port (default "127.0.0.1:1883")
//	-prefix string     Device topic prefix, e.g. dt/sinara/dual-iir/04-91-62-d9-7e-5f
//	-app string        Application name, combined with -mac into the prefix
//	-mac string        Device MAC, combined with -app into the prefix
//	-log-level string  Log level: debug, info, warn, error (default "warn")
//
// Examples:
//
//	# Control a known device
//	stabilizer-ctl -app dual-iir -mac 04-91-62-d9-7e-5f
//
//	# Pick a device interactively
//	stabilizer-ctl -broker 10.0.0.1:1883
//	ctl> discover
//	ctl> use dt/sinara/dual-iir/04-91-62-d9-7e-5f
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sinara-hw/stabilizer-go/internal/cli"
	"github.com/sinara-hw/stabilizer-go/pkg/config"
	"github.com/sinara-hw/stabilizer-go/pkg/connection"
	"github.com/sinara-hw/stabilizer-go/pkg/identity"
	"github.com/sinara-hw/stabilizer-go/pkg/pubsub"
)

const dialTimeout = 5 * time.Second

var (
	brokerAddr = flag.String("broker", config.DefaultBroker, "Broker address ip:port")
	prefixFlag = flag.String("prefix", "", "Device topic prefix")
	appFlag    = flag.String("app", "", "Application name, combined with -mac into the prefix")
	macFlag    = flag.String("mac", "", "Device MAC, combined with -app into the prefix")
	logLevel   = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	level, err := cli.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	prefix, err := devicePrefix(*prefixFlag, *appFlag, *macFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sh, err := NewShell(prefix, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	clientID := "ctl-" + uuid.NewString()[:8]
	mgr := connection.NewManager(func(ctx context.Context) (<-chan struct{}, error) {
		conn, err := pubsub.Dial(ctx, *brokerAddr, clientID)
		if err != nil {
			return nil, err
		}
		if err := sh.Attach(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn.Done(), nil
	}, connection.DefaultBackoffConfig())
	mgr.OnStateChange(func(_, state connection.State) {
		sh.logger.Info("broker connection", "broker", *brokerAddr, "state", state.String())
	})

	startCtx, startCancel := context.WithTimeout(ctx, dialTimeout)
	err = mgr.Start(startCtx)
	startCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: connect to %s: %v\n", *brokerAddr, err)
		os.Exit(1)
	}

	sh.Run(ctx, cancel)

	mgr.Close()
	_ = sh.Close()
}

// devicePrefix picks the device prefix from the flags. An empty result means
// no device is selected yet.
func devicePrefix(prefix, app, mac string) (string, error) {
	if prefix != "" {
		return prefix, nil
	}
	if app == "" && mac == "" {
		return "", nil
	}
	if app == "" || mac == "" {
		return "", fmt.Errorf("-app and -mac must be given together")
	}
	parsed, err := identity.ParseMAC(mac)
	if err != nil {
		return "", err
	}
	p, err := identity.TopicPrefix(app, parsed)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}
