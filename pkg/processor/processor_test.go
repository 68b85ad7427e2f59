package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/internal/testharness/mock"
	"github.com/sinara-hw/stabilizer-go/pkg/log"
	"github.com/sinara-hw/stabilizer-go/pkg/poll"
)

type recordingLogger struct {
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.events = append(r.events, e)
}

func newProcessor(link *bool) (*Processor, *mock.Stack, *recordingLogger) {
	stack := mock.NewStack()
	logger := &recordingLogger{}
	phy := LinkFunc(func() bool { return *link })
	return New(stack, phy, mock.NewClock(time.Unix(0, 0)), logger), stack, logger
}

func TestUpdateMapsPollResult(t *testing.T) {
	tests := []struct {
		name    string
		changed bool
		err     error
		want    poll.UpdateState
	}{
		{"changed", true, nil, poll.Updated},
		{"idle", false, nil, poll.NoChange},
		{"error", false, errors.New("malformed"), poll.Updated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := true
			p, stack, _ := newProcessor(&up)
			stack.PollChanged = tt.changed
			stack.PollErr = tt.err

			assert.Equal(t, tt.want, p.Update())
			assert.Equal(t, 1, stack.Polls())
		})
	}
}

func TestUpdateCountsPollErrors(t *testing.T) {
	up := true
	p, stack, logger := newProcessor(&up)
	stack.PollErr = errors.New("malformed")

	p.Update()

	assert.Equal(t, uint64(1), p.Stats().PollErrors)
	require.Len(t, logger.events, 1)
	assert.Equal(t, log.CategoryError, logger.events[0].Category)
}

func TestLinkDownResetsStackOnce(t *testing.T) {
	up := true
	p, stack, logger := newProcessor(&up)

	p.Update()
	assert.Zero(t, stack.LinkResets())

	up = false
	p.Update()
	p.Update()
	p.Update()
	assert.Equal(t, 1, stack.LinkResets())
	assert.True(t, p.LinkDown())

	up = true
	p.Update()
	assert.False(t, p.LinkDown())

	up = false
	p.Update()
	assert.Equal(t, 2, stack.LinkResets())
	assert.Equal(t, uint64(2), p.Stats().LinkResets)

	var transitions []string
	for _, e := range logger.events {
		if e.StateChange != nil && e.StateChange.Entity == log.StateEntityLink {
			transitions = append(transitions, e.StateChange.NewState)
		}
	}
	assert.Equal(t, []string{"DOWN", "UP", "DOWN"}, transitions)
}

func TestEgressCountsPollErrors(t *testing.T) {
	up := true
	p, stack, logger := newProcessor(&up)
	stack.PollErr = errors.New("exhausted")

	p.Egress()
	p.Egress()

	assert.Equal(t, 2, stack.Polls())
	assert.Equal(t, uint64(2), p.Stats().PollErrors)
	assert.Equal(t, uint64(2), p.Stats().Polls)
	require.Len(t, logger.events, 2)
	for _, e := range logger.events {
		require.NotNil(t, e.Error)
		assert.Equal(t, "egress", e.Error.Context)
	}

	stack.PollErr = nil
	p.Egress()
	assert.Equal(t, uint64(2), p.Stats().PollErrors)
	assert.Len(t, logger.events, 2)
}

func TestAlwaysUp(t *testing.T) {
	assert.True(t, AlwaysUp{}.LinkUp())
}

func TestInterfacePHYMissing(t *testing.T) {
	assert.False(t, InterfacePHY{Name: "does-not-exist0"}.LinkUp())
}
