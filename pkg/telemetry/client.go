package telemetry

import (
	"fmt"

	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
	"github.com/sinara-hw/stabilizer-go/pkg/poll"
	"github.com/sinara-hw/stabilizer-go/pkg/pubsub"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// TopicSuffix is appended to the device prefix to form the telemetry topic.
const TopicSuffix = "/telemetry"

// Client publishes telemetry records of type T under "<prefix>/telemetry".
type Client[T any] struct {
	session   *pubsub.Session
	topic     string
	published uint64
}

// NewClient creates a telemetry client. The session's ClientID is replaced by clientID.
func NewClient[T any](stack netstack.Stack, clock netstack.Clock, clientID, prefix string, config pubsub.SessionConfig) (*Client[T], error) {
	config.ClientID = clientID
	session, err := pubsub.NewSession(stack, clock, config)
	if err != nil {
		return nil, fmt.Errorf("telemetry session: %w", err)
	}
	return &Client[T]{
		session: session,
		topic:   prefix + TopicSuffix,
	}, nil
}

// Update services the broker connection. It reports Updated when the
// connection came up or went down. Inbound publications are discarded.
func (c *Client[T]) Update() poll.UpdateState {
	changed := c.session.Poll()
	for {
		if _, ok := c.session.Next(); !ok {
			break
		}
	}
	return poll.FromBool(changed)
}

// Publish encodes and queues one telemetry record. Records published while
// the broker is unreachable are dropped with pubsub.ErrNotConnected.
func (c *Client[T]) Publish(record T) error {
	payload, err := wire.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode telemetry: %w", err)
	}
	if err := c.session.Publish(c.topic, payload, false); err != nil {
		return err
	}
	c.published++
	return nil
}

// Topic returns the telemetry topic.
func (c *Client[T]) Topic() string {
	return c.topic
}

// IsConnected reports whether the broker session is up.
func (c *Client[T]) IsConnected() bool {
	return c.session.IsConnected()
}

// Published returns the number of records queued for transmission.
func (c *Client[T]) Published() uint64 {
	return c.published
}

// Session returns the underlying broker session.
func (c *Client[T]) Session() *pubsub.Session {
	return c.session
}
