package network

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/sinara-hw/stabilizer-go/pkg/identity"
	"github.com/sinara-hw/stabilizer-go/pkg/log"
	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
	"github.com/sinara-hw/stabilizer-go/pkg/poll"
	"github.com/sinara-hw/stabilizer-go/pkg/processor"
	"github.com/sinara-hw/stabilizer-go/pkg/pubsub"
	"github.com/sinara-hw/stabilizer-go/pkg/settings"
	"github.com/sinara-hw/stabilizer-go/pkg/shared"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
)

// Client roles used to derive client ids.
const (
	RoleSettings  = "settings"
	RoleTelemetry = "tlm"
)

// ErrStreamingTransferred is returned when the stream generator was already
// handed to the application.
var ErrStreamingTransferred = errors.New("streaming already transferred")

// ErrStackShared is returned by New when given a proxy of an existing
// shared.Manager instead of the stack itself.
var ErrStackShared = errors.New("stack is already owned by a shared manager")

// StreamingState tells who owns the stream generator.
type StreamingState uint8

const (
	// Internal means Users still holds the generator.
	Internal StreamingState = iota

	// External means the generator was handed to the application.
	External
)

// String returns the state name.
func (s StreamingState) String() string {
	switch s {
	case Internal:
		return "INTERNAL"
	case External:
		return "EXTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Processor drives the stack.
type Processor interface {
	poll.Poller
	Egress()
	Stats() processor.Stats
}

// SettingsClient receives settings of type S.
type SettingsClient[S any] interface {
	poll.Poller
	Settings() S
	IsConnected() bool
}

// TelemetryClient publishes telemetry records of type T.
type TelemetryClient[T any] interface {
	poll.Poller
	Publish(record T) error
	IsConnected() bool
}

// Stream sends queued sample blocks.
type Stream interface {
	Process() bool
	SetRemote(addr netip.AddrPort)
	Stats() stream.Stats
}

// generatorSlot is either owned or transferred.
type generatorSlot interface {
	streamingState() StreamingState
}

type owned struct {
	gen *stream.Generator
}

func (owned) streamingState() StreamingState { return Internal }

type transferred struct{}

func (transferred) streamingState() StreamingState { return External }

// Config configures Users.
type Config[S any] struct {
	// Settings is the initial settings value.
	Settings S

	// Session configures both broker sessions. ClientID is derived.
	Session pubsub.SessionConfig

	// Stream configures the sample stream.
	Stream stream.Config

	// Logger receives protocol events (optional).
	Logger log.Logger
}

// Metrics is a snapshot of Users counters.
type Metrics struct {
	Cycles          uint64
	SettingsUpdates uint64
	DrainSteps      uint64
	Streaming       StreamingState

	SettingsConnected  bool
	TelemetryConnected bool

	Stack     shared.Stats
	Processor processor.Stats
	Stream    stream.Stats
}

// Users owns every network user of the device. S is the settings type and
// T the telemetry record type.
type Users[S, T any] struct {
	manager   *shared.Manager
	processor Processor
	settings  SettingsClient[S]
	telemetry TelemetryClient[T]
	stream    Stream
	generator generatorSlot
	logger    log.Logger

	cycles          uint64
	settingsUpdates uint64
	drainSteps      uint64
}

// New takes ownership of stack and creates every network user on it.
func New[S, T any](stack netstack.Stack, phy processor.PHY, clock netstack.Clock, app string, mac identity.MAC, config Config[S]) (*Users[S, T], error) {
	switch stack.(type) {
	case shared.Proxy, *shared.Proxy:
		return nil, ErrStackShared
	}
	manager := shared.NewManager(stack)

	prefix, err := identity.TopicPrefix(app, mac)
	if err != nil {
		return nil, fmt.Errorf("topic prefix: %w", err)
	}
	settingsID, err := identity.ClientID(app, RoleSettings, mac)
	if err != nil {
		return nil, fmt.Errorf("settings client id: %w", err)
	}
	telemetryID, err := identity.ClientID(app, RoleTelemetry, mac)
	if err != nil {
		return nil, fmt.Errorf("telemetry client id: %w", err)
	}

	sessionConfig := config.Session
	if sessionConfig.Logger == nil {
		sessionConfig.Logger = config.Logger
	}
	streamConfig := config.Stream
	if streamConfig.Logger == nil {
		streamConfig.Logger = config.Logger
	}

	proc := processor.New(manager.AcquireStack(), phy, clock, config.Logger)

	settingsClient, err := settings.NewClient(manager.AcquireStack(), clock, settingsID.String(), prefix.String(), config.Settings, sessionConfig)
	if err != nil {
		return nil, err
	}
	telemetryClient, err := telemetry.NewClient[T](manager.AcquireStack(), clock, telemetryID.String(), prefix.String(), sessionConfig)
	if err != nil {
		return nil, err
	}
	gen, str := stream.New(manager.AcquireStack(), streamConfig)

	u := newUsers[S, T](proc, settingsClient, telemetryClient, str, gen, config.Logger)
	u.manager = manager
	return u, nil
}

func newUsers[S, T any](proc Processor, sc SettingsClient[S], tc TelemetryClient[T], str Stream, gen *stream.Generator, logger log.Logger) *Users[S, T] {
	return &Users[S, T]{
		processor: proc,
		settings:  sc,
		telemetry: tc,
		stream:    str,
		generator: owned{gen: gen},
		logger:    log.OrNoop(logger),
	}
}

// Update services every user once: the processor, telemetry, the stream
// backlog (External only) and settings, in that order. It reports Updated
// when settings changed, otherwise the processor's result. Telemetry
// publication never counts as a change.
func (u *Users[S, T]) Update() poll.UpdateState {
	u.cycles++

	state := u.processor.Update()

	_ = u.telemetry.Update()

	if u.generator.streamingState() == External {
		for {
			u.processor.Egress()
			u.drainSteps++
			if !u.stream.Process() {
				break
			}
		}
	}

	if u.settings.Update() == poll.Updated {
		u.settingsUpdates++
		return poll.Updated
	}
	return state
}

// EnableStreaming points the stream at remote and hands the generator to
// the application. It succeeds once.
func (u *Users[S, T]) EnableStreaming(remote netip.AddrPort) (*stream.Generator, error) {
	slot, ok := u.generator.(owned)
	if !ok {
		return nil, ErrStreamingTransferred
	}
	u.stream.SetRemote(remote)
	u.generator = transferred{}
	u.logStreaming(remote)
	return slot.gen, nil
}

// DirectStream points the stream at remote while the generator is still
// held. Once streaming was transferred the application addresses the stream
// through its generator and DirectStream does nothing.
func (u *Users[S, T]) DirectStream(remote netip.AddrPort) {
	if u.generator.streamingState() == Internal {
		u.stream.SetRemote(remote)
	}
}

// StreamingState reports who owns the stream generator.
func (u *Users[S, T]) StreamingState() StreamingState {
	return u.generator.streamingState()
}

// Settings returns the settings client.
func (u *Users[S, T]) Settings() SettingsClient[S] {
	return u.settings
}

// Telemetry returns the telemetry client.
func (u *Users[S, T]) Telemetry() TelemetryClient[T] {
	return u.telemetry
}

// Metrics returns a snapshot of the counters of Users and its parts.
func (u *Users[S, T]) Metrics() Metrics {
	m := Metrics{
		Cycles:             u.cycles,
		SettingsUpdates:    u.settingsUpdates,
		DrainSteps:         u.drainSteps,
		Streaming:          u.generator.streamingState(),
		SettingsConnected:  u.settings.IsConnected(),
		TelemetryConnected: u.telemetry.IsConnected(),
		Processor:          u.processor.Stats(),
		Stream:             u.stream.Stats(),
	}
	if u.manager != nil {
		m.Stack = u.manager.Stats()
	}
	return m
}

func (u *Users[S, T]) logStreaming(remote netip.AddrPort) {
	u.logger.Log(log.Event{
		ClientID:   "network",
		Layer:      log.LayerNetwork,
		Category:   log.CategoryState,
		RemoteAddr: remote.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityStreaming,
			OldState: Internal.String(),
			NewState: External.String(),
		},
	})
}
