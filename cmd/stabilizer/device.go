package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sinara-hw/stabilizer-go/internal/cli"
	"github.com/sinara-hw/stabilizer-go/internal/device"
	"github.com/sinara-hw/stabilizer-go/pkg/config"
	"github.com/sinara-hw/stabilizer-go/pkg/discovery"
	"github.com/sinara-hw/stabilizer-go/pkg/identity"
	"github.com/sinara-hw/stabilizer-go/pkg/metrics"
	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
	"github.com/sinara-hw/stabilizer-go/pkg/network"
	"github.com/sinara-hw/stabilizer-go/pkg/poll"
	"github.com/sinara-hw/stabilizer-go/pkg/pubsub"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
	"github.com/sinara-hw/stabilizer-go/pkg/version"
)

// Main loop timing.
const (
	loopPeriod    = time.Millisecond
	metricsPeriod = time.Second
)

type users = network.Users[device.Settings, telemetry.Telemetry]

func run(ctx context.Context, cfg config.DeviceConfig, logger *slog.Logger) error {
	mac, err := cfg.DeviceMAC()
	if err != nil {
		return err
	}
	brokerAddr, err := cfg.BrokerAddr()
	if err != nil {
		return err
	}
	boot, err := device.FromConfig(cfg)
	if err != nil {
		return err
	}

	plog, closeLog, err := cli.ProtocolLogger(logger, cfg.ProtocolLog)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	hostConfig := netstack.DefaultHostConfig()
	hostConfig.Logger = plog
	stack := netstack.NewHostStack(hostConfig)
	defer stack.Shutdown()

	netUsers, err := network.New[device.Settings, telemetry.Telemetry](stack, linkPHY(cfg.Interface, logger), netstack.SystemClock{}, cfg.App, mac, network.Config[device.Settings]{
		Settings: boot,
		Session: pubsub.SessionConfig{
			Broker:    brokerAddr,
			KeepAlive: cfg.KeepAlive,
			Backoff:   cfg.Backoff,
		},
		Stream: stream.Config{QueueDepth: cfg.StreamQueueDepth},
		Logger: plog,
	})
	if err != nil {
		return fmt.Errorf("network setup: %w", err)
	}
	prefix, _ := identity.TopicPrefix(cfg.App, mac)
	logger.Info("device started",
		"app", cfg.App,
		"mac", mac.String(),
		"prefix", prefix.String(),
		"broker", brokerAddr.String(),
		"stream_target", boot.StreamTarget.String())

	var buffer telemetry.SharedBuffer
	dsp := device.NewDSP(&buffer, boot, uint64(time.Now().UnixNano()))
	gen, err := netUsers.EnableStreaming(boot.StreamTarget.AddrPort())
	if err != nil {
		return err
	}
	dsp.Attach(gen)
	go dsp.Run(ctx, device.DefaultBatchPeriod)

	var snapshot metrics.Snapshot
	if cfg.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		if err := metrics.RegisterDevice(reg, &snapshot); err != nil {
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
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Interface: cfg.Interface,
			TTL:       discovery.DefaultTTL,
		})
		info := &discovery.DeviceInfo{
			App:     cfg.App,
			MAC:     mac,
			Prefix:  prefix.String(),
			Broker:  brokerAddr.String(),
			Version: version.Current,
			Port:    brokerAddr.Port(),
		}
		if err := adv.AdvertiseDevice(info); err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer adv.StopAll()
			logger.Info("advertising over mDNS", "instance", info.InstanceName())
		}
	}

	loop := &mainLoop{
		net:      netUsers,
		dsp:      dsp,
		gen:      gen,
		buffer:   &buffer,
		snapshot: &snapshot,
		logger:   logger,
		current:  boot,
	}
	return loop.run(ctx)
}

// mainLoop is the cooperative device loop. It owns every network user and
// runs on a single goroutine.
type mainLoop struct {
	net      *users
	dsp      *device.DSP
	gen      *stream.Generator
	buffer   *telemetry.SharedBuffer
	snapshot *metrics.Snapshot
	logger   *slog.Logger

	current       device.Settings
	nextTelemetry time.Time
	nextMetrics   time.Time
}

func (l *mainLoop) run(ctx context.Context) error {
	ticker := time.NewTicker(loopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.step(now)
		}
	}
}

func (l *mainLoop) step(now time.Time) {
	if l.net.Update() == poll.Updated {
		l.apply(l.net.Settings().Settings())
	}

	if !now.Before(l.nextTelemetry) {
		l.nextTelemetry = now.Add(l.current.Period())
		record := l.buffer.Load().ToTelemetry(l.current.AFE[0], l.current.AFE[1])
		if err := l.net.Telemetry().Publish(record); err != nil {
			l.logger.Debug("telemetry not published", "error", err)
		}
	}

	if !now.Before(l.nextMetrics) {
		l.nextMetrics = now.Add(metricsPeriod)
		l.snapshot.Store(l.net.Metrics())
	}
}

// apply hands new settings to the DSP and retargets the stream.
func (l *mainLoop) apply(s device.Settings) {
	if s.StreamTarget != l.current.StreamTarget {
		l.gen.SetRemote(s.StreamTarget.AddrPort())
		l.logger.Info("stream retargeted", "target", s.StreamTarget.String())
	}
	if s.Period() != l.current.Period() {
		l.nextTelemetry = time.Time{}
	}
	l.current = s
	l.dsp.Configure(s)
	l.logger.Info("settings applied",
		"afe", fmt.Sprint(s.AFE),
		"output", fmt.Sprint(s.Output),
		"telemetry_period", s.Period())
}
