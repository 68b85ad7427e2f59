package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/sinara-hw/stabilizer-go/internal/cli"
	"github.com/sinara-hw/stabilizer-go/internal/device"
	"github.com/sinara-hw/stabilizer-go/pkg/discovery"
	"github.com/sinara-hw/stabilizer-go/pkg/pubsub"
	"github.com/sinara-hw/stabilizer-go/pkg/settings"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// Shell timing.
const (
	responseTimeout  = 2 * time.Second
	telemetryTimeout = 30 * time.Second
	discoverTimeout  = 3 * time.Second
)

var (
	errQuit         = errors.New("quit")
	errNoDevice     = errors.New("no device selected (use <prefix>)")
	errNotConnected = errors.New("not connected to the broker")
)

// Shell is the interactive command interpreter.
type Shell struct {
	rl     *readline.Instance
	out    io.Writer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *pubsub.Conn
	prefix string

	responses chan settings.Response
	records   chan telemetry.Telemetry
}

// NewShell creates a shell for the device at prefix. Log records go to the
// shell's stderr.
func NewShell(prefix string, level slog.Level) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ctl> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := newShell(prefix, rl.Stdout(), cli.NewLogger(rl.Stderr(), level))
	s.rl = rl
	return s, nil
}

func newShell(prefix string, out io.Writer, logger *slog.Logger) *Shell {
	return &Shell{
		out:       out,
		logger:    logger,
		prefix:    prefix,
		responses: make(chan settings.Response, 16),
		records:   make(chan telemetry.Telemetry, 16),
	}
}

// Attach subscribes conn to device responses and telemetry and makes it the
// connection used by commands.
func (s *Shell) Attach(ctx context.Context, conn *pubsub.Conn) error {
	if err := conn.Subscribe(ctx, "dt/sinara/+/+"+settings.ResponseSuffix, s.onResponse); err != nil {
		return err
	}
	if err := conn.Subscribe(ctx, "dt/sinara/+/+"+telemetry.TopicSuffix, s.onTelemetry); err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Close closes the attached connection.
func (s *Shell) Close() error {
	if conn := s.connection(); conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Shell) connection() *pubsub.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Shell) publish(topic string, v any, retain bool) error {
	conn := s.connection()
	if conn == nil {
		return errNotConnected
	}
	return conn.PublishValue(topic, v, retain)
}

// Prefix returns the selected device prefix.
func (s *Shell) Prefix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefix
}

func (s *Shell) setPrefix(prefix string) {
	s.mu.Lock()
	s.prefix = prefix
	s.mu.Unlock()
}

func (s *Shell) onResponse(m pubsub.Message) {
	if m.Topic != s.Prefix()+settings.ResponseSuffix {
		return
	}
	var resp settings.Response
	if err := wire.Unmarshal(m.Payload, &resp); err != nil {
		s.logger.Debug("undecodable response", "topic", m.Topic, "error", err)
		return
	}
	select {
	case s.responses <- resp:
	default:
	}
}

func (s *Shell) onTelemetry(m pubsub.Message) {
	if m.Topic != s.Prefix()+telemetry.TopicSuffix {
		return
	}
	var rec telemetry.Telemetry
	if err := wire.Unmarshal(m.Payload, &rec); err != nil {
		s.logger.Debug("undecodable telemetry", "topic", m.Topic, "error", err)
		return
	}
	select {
	case s.records <- rec:
	default:
	}
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(s.out, "Exiting...")
				cancel()
				return
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "discover", "d":
		return s.cmdDiscover(ctx, args)
	case "use", "u":
		return s.cmdUse(args)
	case "paths", "p":
		return s.cmdPaths()
	case "set", "s":
		return s.cmdSet(ctx, args)
	case "watch", "w":
		return s.cmdWatch(ctx, args)
	case "stream":
		return s.cmdStream(ctx, args)
	case "record":
		return s.cmdRecord(ctx, args)
	case "publish", "pub":
		return s.cmdPublish(args)
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  discover [timeout]                  Browse devices over mDNS
  use <prefix>                        Select a device by topic prefix
  paths                               List settings paths
  set <path> <value>                  Change a setting (value in YAML)
  watch [n]                           Print the next n telemetry records
  stream <ip:port> <duration>         Stream to this host and report loss
  record <ip:port> <file> <frames> [g0 g1]
                                      Stream to this host and save samples as CSV
  publish <topic> <value> [retain]    Publish a raw value
  help                                Show this help
  quit                                Exit
`)
}

func (s *Shell) cmdDiscover(ctx context.Context, args []string) error {
	timeout := discoverTimeout
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		timeout = d
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := 0
	browser := discovery.NewBrowser(discovery.BrowserConfig{})
	for svc := range browser.BrowseDevices(ctx) {
		found++
		compat := "compatible"
		if !svc.Info.Compatible() {
			compat = "incompatible"
		}
		fmt.Fprintf(s.out, "  %s\n    prefix:  %s\n    broker:  %s\n    version: %s (%s)\n",
			svc.InstanceName, svc.Info.Prefix, svc.Info.Broker, svc.Info.Version, compat)
	}
	fmt.Fprintf(s.out, "%d device(s) found\n", found)
	return nil
}

func (s *Shell) cmdUse(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: use <prefix>")
	}
	prefix := strings.TrimSuffix(args[0], "/")
	if !wire.ValidTopic(prefix) {
		return fmt.Errorf("invalid prefix %q", prefix)
	}
	s.setPrefix(prefix)
	fmt.Fprintf(s.out, "Using %s\n", prefix)
	return nil
}

func (s *Shell) cmdPaths() error {
	for _, p := range settings.Paths(&device.Settings{}) {
		fmt.Fprintf(s.out, "  %s\n", p)
	}
	return nil
}

func (s *Shell) cmdSet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: set <path> <value>")
	}
	path := strings.Trim(args[0], "/")
	value, err := parseSetting(path, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	resp, err := s.request(ctx, path, value)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: %s\n", resp.Code, resp.Msg)
	return nil
}

// request publishes a settings change and waits for the device's answer.
func (s *Shell) request(ctx context.Context, path string, value any) (settings.Response, error) {
	prefix := s.Prefix()
	if prefix == "" {
		return settings.Response{}, errNoDevice
	}

	s.drainResponses()
	if err := s.publish(prefix+settings.SettingsSegment+path, value, false); err != nil {
		return settings.Response{}, err
	}

	select {
	case resp := <-s.responses:
		return resp, nil
	case <-time.After(responseTimeout):
		return settings.Response{}, fmt.Errorf("no response from %s", prefix)
	case <-ctx.Done():
		return settings.Response{}, ctx.Err()
	}
}

func (s *Shell) drainResponses() {
	for {
		select {
		case <-s.responses:
		default:
			return
		}
	}
}

func (s *Shell) cmdWatch(ctx context.Context, args []string) error {
	if s.Prefix() == "" {
		return errNoDevice
	}
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		n = v
	}

	for i := 0; i < n; i++ {
		select {
		case rec := <-s.records:
			fmt.Fprintf(s.out, "in: %+.4f V %+.4f V  out: %+.4f V %+.4f V  di: %v\n",
				rec.InputLevels[0], rec.InputLevels[1],
				rec.OutputLevels[0], rec.OutputLevels[1],
				rec.DigitalInputs)
		case <-time.After(telemetryTimeout):
			return errors.New("no telemetry received")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// openStream listens on target's port and points the device at target.
func (s *Shell) openStream(ctx context.Context, target string) (*stream.Receiver, error) {
	t, err := stream.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if !t.Enabled() {
		return nil, fmt.Errorf("stream target %s addresses no host", t)
	}

	rx, err := stream.Listen(fmt.Sprintf(":%d", t.Port))
	if err != nil {
		return nil, err
	}

	resp, err := s.request(ctx, "stream_target", t)
	if err != nil {
		rx.Close()
		return nil, err
	}
	if resp.Code != settings.CodeOK {
		rx.Close()
		return nil, fmt.Errorf("stream target rejected: %s: %s", resp.Code, resp.Msg)
	}
	return rx, nil
}

func (s *Shell) cmdStream(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: stream <ip:port> <duration>")
	}
	d, err := time.ParseDuration(args[1])
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}

	rx, err := s.openStream(ctx, args[0])
	if err != nil {
		return err
	}
	defer rx.Close()

	report, err := rx.Measure(ctx, d)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, report)
	return nil
}

func (s *Shell) cmdRecord(ctx context.Context, args []string) error {
	if len(args) != 3 && len(args) != 5 {
		return errors.New("usage: record <ip:port> <file> <frames> [g0 g1]")
	}
	frames, err := strconv.Atoi(args[2])
	if err != nil || frames <= 0 {
		return fmt.Errorf("invalid frame count %q", args[2])
	}
	gains := [2]telemetry.AfeGain{telemetry.G1, telemetry.G1}
	if len(args) == 5 {
		for i, g := range args[3:] {
			if gains[i], err = telemetry.ParseAfeGain(g); err != nil {
				return err
			}
		}
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	rx, err := s.openStream(ctx, args[0])
	if err != nil {
		return err
	}
	defer rx.Close()

	if err := rx.Record(ctx, f, frames, gains); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Recorded %d frames to %s\n", frames, args[1])
	return nil
}

func (s *Shell) cmdPublish(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: publish <topic> <value> [retain]")
	}
	retain := false
	valueArgs := args[1:]
	if last := valueArgs[len(valueArgs)-1]; len(valueArgs) > 1 && last == "retain" {
		retain = true
		valueArgs = valueArgs[:len(valueArgs)-1]
	}

	value, err := parseValue(strings.Join(valueArgs, " "))
	if err != nil {
		return err
	}
	return s.publish(args[0], value, retain)
}
