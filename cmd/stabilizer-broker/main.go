// Command stabilizer-broker runs the pub/sub broker that devices and
// controllers connect to.
//
// Usage:
//
//	stabilizer-broker [flags]
//
// Flags:
//
//	-config string         Configuration file path (YAML)
//	-listen string         TCP listen address (default ":1883")
//	-max-connections int   Maximum connected clients (default 64)
//	-metrics string        Serve Prometheus metrics on this address
//	-protocol-log string   Write protocol events to this CBOR file
//	-mdns                  Advertise the broker over mDNS
//	-log-level string      Log level: debug, info, warn, error (default "info")
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sinara-hw/stabilizer-go/internal/cli"
	"github.com/sinara-hw/stabilizer-go/pkg/broker"
	"github.com/sinara-hw/stabilizer-go/pkg/config"
	"github.com/sinara-hw/stabilizer-go/pkg/discovery"
	"github.com/sinara-hw/stabilizer-go/pkg/metrics"
	"github.com/sinara-hw/stabilizer-go/pkg/version"
)

var (
	configFile     = flag.String("config", "", "Configuration file path (YAML)")
	listen         = flag.String("listen", "", "TCP listen address")
	maxConnections = flag.Int("max-connections", 0, "Maximum connected clients")
	metricsAddr    = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	protocolLog    = flag.String("protocol-log", "", "Write protocol events to this CBOR file")
	mdns           = flag.Bool("mdns", false, "Advertise the broker over mDNS")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	level, err := cli.ParseLevel(*logLevel)
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("broker stopped", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (config.BrokerConfig, error) {
	cfg := config.DefaultBrokerConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadBroker(*configFile); err != nil {
			return config.BrokerConfig{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "max-connections":
			cfg.MaxConnections = *maxConnections
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "protocol-log":
			cfg.ProtocolLog = *protocolLog
		case "mdns":
			cfg.MDNS = *mdns
		}
	})

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger) error {
	plog, closeLog, err := cli.ProtocolLogger(logger, cfg.ProtocolLog)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	b := broker.New(broker.Config{
		Address:        cfg.Listen,
		MaxConnections: cfg.MaxConnections,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         plog,
	})
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = b.Stop() }()
	logger.Info("broker listening", "addr", b.Addr().String())

	if cfg.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		if err := metrics.RegisterBroker(reg, b); err != nil {
			return err
		}
		go func() {
			if err := reg.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	if cfg.MDNS {
		host, _ := os.Hostname()
		adv := discovery.NewAdvertiser(discovery.DefaultAdvertiserConfig())
		info := &discovery.BrokerInfo{
			Name:    "stabilizer-broker-" + host,
			Port:    uint16(b.Addr().(*net.TCPAddr).Port),
			Version: version.Current,
		}
		if err := adv.AdvertiseBroker(info); err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer adv.StopAll()
			logger.Info("advertising over mDNS", "instance", info.Name)
		}
	}

	<-ctx.Done()
	stats := b.Stats()
	logger.Info("shutting down",
		"accepted", stats.Accepted,
		"received", stats.Received,
		"delivered", stats.Delivered,
		"dropped", stats.Dropped)
	return nil
}
