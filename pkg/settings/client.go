package settings

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
	"github.com/sinara-hw/stabilizer-go/pkg/poll"
	"github.com/sinara-hw/stabilizer-go/pkg/pubsub"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// Topic layout below the device prefix.
const (
	// SettingsSegment separates the device prefix from a settings path.
	SettingsSegment = "/settings/"

	// ResponseSuffix is appended to the device prefix to form the response topic.
	ResponseSuffix = "/response"
)

// ErrInvalid indicates the settings value failed validation.
var ErrInvalid = errors.New("settings rejected")

// Validator is implemented by settings types with cross-field constraints.
type Validator interface {
	Validate() error
}

// ResponseCode is the outcome of a settings request.
type ResponseCode uint8

const (
	// CodeOK indicates the setting was applied.
	CodeOK ResponseCode = iota

	// CodeUnknownPath indicates the path addresses no setting.
	CodeUnknownPath

	// CodeDecodeError indicates the payload did not decode.
	CodeDecodeError

	// CodeInvalid indicates validation rejected the change.
	CodeInvalid
)

// String returns the code name.
func (c ResponseCode) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeUnknownPath:
		return "UNKNOWN_PATH"
	case CodeDecodeError:
		return "DECODE_ERROR"
	case CodeInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// Response answers a settings request.
type Response struct {
	Code ResponseCode `cbor:"code"`
	Msg  string       `cbor:"msg"`
}

func responseFor(err error) Response {
	switch {
	case err == nil:
		return Response{Code: CodeOK, Msg: "OK"}
	case errors.Is(err, ErrUnknownPath):
		return Response{Code: CodeUnknownPath, Msg: err.Error()}
	case errors.Is(err, ErrDecode):
		return Response{Code: CodeDecodeError, Msg: err.Error()}
	default:
		return Response{Code: CodeInvalid, Msg: err.Error()}
	}
}

// Client receives settings of type S from the broker. S must be a struct.
type Client[S any] struct {
	session        *pubsub.Session
	settingsPrefix string
	responseTopic  string
	current        S
	clock          netstack.Clock
	logger         log.Logger

	applied  uint64
	rejected uint64
}

// NewClient creates a settings client starting from initial. The session's
// ClientID is replaced by clientID.
func NewClient[S any](stack netstack.Stack, clock netstack.Clock, clientID, prefix string, initial S, config pubsub.SessionConfig) (*Client[S], error) {
	if t := reflect.TypeOf(initial); t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("settings type must be a struct, got %T", initial)
	}

	config.ClientID = clientID
	session, err := pubsub.NewSession(stack, clock, config)
	if err != nil {
		return nil, fmt.Errorf("settings session: %w", err)
	}

	settingsPrefix := prefix + SettingsSegment
	if err := session.Subscribe(settingsPrefix + wire.MultiLevelWildcard); err != nil {
		return nil, err
	}

	return &Client[S]{
		session:        session,
		settingsPrefix: settingsPrefix,
		responseTopic:  prefix + ResponseSuffix,
		current:        initial,
		clock:          clock,
		logger:         log.OrNoop(config.Logger),
	}, nil
}

// Update services the broker connection and applies received settings. It
// reports Updated when at least one setting changed.
func (c *Client[S]) Update() poll.UpdateState {
	c.session.Poll()

	updated := false
	for {
		msg, ok := c.session.Next()
		if !ok {
			break
		}
		path, ok := strings.CutPrefix(msg.Topic, c.settingsPrefix)
		if !ok {
			continue
		}

		err := c.apply(path, msg.Payload)
		c.respond(path, err)
		if err == nil {
			updated = true
		}
	}
	return poll.FromBool(updated)
}

// Settings returns the current settings.
func (c *Client[S]) Settings() S {
	return c.current
}

// IsConnected reports whether the broker session is up.
func (c *Client[S]) IsConnected() bool {
	return c.session.IsConnected()
}

// Applied returns the number of accepted changes.
func (c *Client[S]) Applied() uint64 {
	return c.applied
}

// Rejected returns the number of rejected changes.
func (c *Client[S]) Rejected() uint64 {
	return c.rejected
}

// Session returns the underlying broker session.
func (c *Client[S]) Session() *pubsub.Session {
	return c.session
}

func (c *Client[S]) apply(path string, payload []byte) error {
	restore, err := set(&c.current, path, payload)
	if err != nil {
		c.rejected++
		return err
	}

	if err := validate(&c.current); err != nil {
		restore()
		c.rejected++
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	c.applied++
	return nil
}

func validate(v any) error {
	if val, ok := v.(Validator); ok {
		return val.Validate()
	}
	if val, ok := reflect.ValueOf(v).Elem().Interface().(Validator); ok {
		return val.Validate()
	}
	return nil
}

func (c *Client[S]) respond(path string, err error) {
	resp := responseFor(err)

	event := log.Event{
		Timestamp: c.clock.Now(),
		ClientID:  c.session.ClientID(),
		Layer:     log.LayerNetwork,
		Topic:     c.settingsPrefix + path,
	}
	if err != nil {
		event.Category = log.CategoryError
		event.Error = &log.ErrorEventData{Layer: log.LayerNetwork, Message: err.Error(), Context: "apply setting"}
	} else {
		event.Category = log.CategoryState
		event.StateChange = &log.StateChangeEvent{Entity: log.StateEntitySettings, NewState: "APPLIED", Reason: path}
	}
	c.logger.Log(event)

	payload, encErr := wire.Marshal(resp)
	if encErr != nil {
		return
	}
	// Responses are best effort; the session may have dropped meanwhile.
	_ = c.session.Publish(c.responseTopic, payload, false)
}
