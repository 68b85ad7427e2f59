package network

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/internal/testharness/mock"
	"github.com/sinara-hw/stabilizer-go/pkg/identity"
	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
	"github.com/sinara-hw/stabilizer-go/pkg/poll"
	"github.com/sinara-hw/stabilizer-go/pkg/processor"
	"github.com/sinara-hw/stabilizer-go/pkg/pubsub"
	"github.com/sinara-hw/stabilizer-go/pkg/shared"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

const testPrefix = "dt/sinara/stabilizer/00-11-22-33-44-55"

var (
	testMAC    = identity.MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	testBroker = netip.MustParseAddrPort("10.0.0.1:1883")
)

type deviceSettings struct {
	Output [2]float32 `settings:"output"`
}

type device struct {
	users  *Users[deviceSettings, telemetry.Telemetry]
	stack  *mock.Stack
	broker *mock.Broker
}

func newDevice(t *testing.T) *device {
	t.Helper()
	stack := mock.NewStack()
	users, err := New[deviceSettings, telemetry.Telemetry](stack, processor.AlwaysUp{},
		mock.NewClock(time.Unix(1700000000, 0)), "stabilizer", testMAC,
		Config[deviceSettings]{Session: pubsub.SessionConfig{Broker: testBroker}})
	require.NoError(t, err)

	d := &device{users: users, stack: stack, broker: mock.NewBroker(stack, testBroker)}
	for range 6 {
		users.Update()
		d.broker.Serve(t)
	}
	require.True(t, users.Settings().IsConnected())
	require.True(t, users.Telemetry().IsConnected())
	return d
}

// publish delivers a publication to every broker connection.
func (d *device) publish(t *testing.T, topic string, v any) {
	t.Helper()
	var handles []netstack.Socket
	d.stack.With(func(sockets []*mock.Socket) {
		for i, s := range sockets {
			if s.Open && s.Proto == netstack.TCP {
				handles = append(handles, netstack.Socket(i))
			}
		}
	})
	for _, h := range handles {
		d.broker.Publish(t, h, topic, v)
	}
}

func TestNewRejectsOversizedIdentity(t *testing.T) {
	_, err := New[deviceSettings, telemetry.Telemetry](mock.NewStack(), processor.AlwaysUp{},
		mock.NewClock(time.Now()), strings.Repeat("x", 50), testMAC,
		Config[deviceSettings]{Session: pubsub.SessionConfig{Broker: testBroker}})
	assert.ErrorIs(t, err, identity.ErrIdentityOverflow)
}

func TestNewRejectsSharedProxy(t *testing.T) {
	proxy := shared.NewManager(mock.NewStack()).AcquireStack()

	_, err := New[deviceSettings, telemetry.Telemetry](proxy, processor.AlwaysUp{},
		mock.NewClock(time.Now()), "stabilizer", testMAC,
		Config[deviceSettings]{Session: pubsub.SessionConfig{Broker: testBroker}})
	assert.ErrorIs(t, err, ErrStackShared)
}

func TestDeviceClientIDs(t *testing.T) {
	stack := mock.NewStack()
	users, err := New[deviceSettings, telemetry.Telemetry](stack, processor.AlwaysUp{},
		mock.NewClock(time.Unix(1700000000, 0)), "stabilizer", testMAC,
		Config[deviceSettings]{Session: pubsub.SessionConfig{Broker: testBroker}})
	require.NoError(t, err)
	broker := mock.NewBroker(stack, testBroker)

	users.Update()
	users.Update()

	var ids []string
	for _, h := range []netstack.Socket{0, 1} {
		for _, pkt := range broker.Packets(t, h) {
			if pkt.Type == wire.PacketConnect {
				ids = append(ids, pkt.ClientID)
			}
		}
	}
	assert.ElementsMatch(t, []string{
		"stabilizer-00-11-22-33-44-55-settings",
		"stabilizer-00-11-22-33-44-55-tlm",
	}, ids)
}

func TestDeviceAppliesSettings(t *testing.T) {
	d := newDevice(t)

	d.publish(t, testPrefix+"/settings/output/0", float32(1.5))
	assert.Equal(t, poll.Updated, d.users.Update())
	assert.Equal(t, [2]float32{1.5, 0}, d.users.Settings().Settings().Output)

	assert.Equal(t, poll.NoChange, d.users.Update())
}

func TestDevicePublishesTelemetry(t *testing.T) {
	d := newDevice(t)

	record := telemetry.Buffer{LatestSamples: [2]int16{100, -100}}.ToTelemetry(telemetry.G1, telemetry.G1)
	require.NoError(t, d.users.Telemetry().Publish(record))
	assert.Equal(t, poll.NoChange, d.users.Update())

	var got []*wire.Packet
	for _, pkt := range d.broker.Serve(t) {
		if pkt.Topic == testPrefix+"/telemetry" {
			got = append(got, pkt)
		}
	}
	require.Len(t, got, 1)

	var decoded telemetry.Telemetry
	require.NoError(t, wire.Unmarshal(got[0].Payload, &decoded))
	assert.Equal(t, record, decoded)
}

func TestDeviceStreams(t *testing.T) {
	d := newDevice(t)
	target := netip.MustParseAddrPort("10.0.0.2:9293")

	gen, err := d.users.EnableStreaming(target)
	require.NoError(t, err)

	var adc, dac [2][stream.BatchSize]uint16
	for range 20 {
		require.True(t, gen.Send(adc, dac))
	}
	d.users.Update()

	datagrams := d.stack.TakeDatagrams(target)
	require.Len(t, datagrams, 2, "backlog drained within one cycle")
	f, err := stream.DecodeFrame(datagrams[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(15), f.Sequence)

	_, err = d.users.EnableStreaming(target)
	assert.ErrorIs(t, err, ErrStreamingTransferred)

	m := d.users.Metrics()
	assert.Equal(t, External, m.Streaming)
	assert.Equal(t, uint64(4), m.Stack.Proxies)
	assert.Equal(t, uint64(2), m.Stream.Frames)
}

func TestDeviceLinkReset(t *testing.T) {
	stack := mock.NewStack()
	up := true
	users, err := New[deviceSettings, telemetry.Telemetry](stack, processor.LinkFunc(func() bool { return up }),
		mock.NewClock(time.Unix(1700000000, 0)), "stabilizer", testMAC,
		Config[deviceSettings]{Session: pubsub.SessionConfig{Broker: testBroker}})
	require.NoError(t, err)
	broker := mock.NewBroker(stack, testBroker)
	for range 6 {
		users.Update()
		broker.Serve(t)
	}
	require.True(t, users.Settings().IsConnected())

	up = false
	users.Update()
	users.Update()

	assert.Equal(t, 1, stack.LinkResets())
	assert.False(t, users.Settings().IsConnected())
	assert.False(t, users.Telemetry().IsConnected())
	assert.Equal(t, uint64(1), users.Metrics().Processor.LinkResets)
}
