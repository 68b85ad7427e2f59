package processor

import (
	"github.com/sinara-hw/stabilizer-go/pkg/log"
	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
	"github.com/sinara-hw/stabilizer-go/pkg/poll"
)

// clientID names the processor in protocol log events.
const clientID = "processor"

// Stats holds processor counters.
type Stats struct {
	// Polls is the number of stack polls, ingress and egress.
	Polls uint64

	// PollErrors is the number of polls that returned an error.
	PollErrors uint64

	// LinkResets is the number of times the stack was reset after link loss.
	LinkResets uint64
}

// Processor polls a network stack and tracks the physical link.
type Processor struct {
	stack  netstack.Stack
	phy    PHY
	clock  netstack.Clock
	logger log.Logger

	linkReset bool
	stats     Stats
}

// New creates a processor. logger may be nil.
func New(stack netstack.Stack, phy PHY, clock netstack.Clock, logger log.Logger) *Processor {
	return &Processor{
		stack:  stack,
		phy:    phy,
		clock:  clock,
		logger: log.OrNoop(logger),
	}
}

// Update polls the stack and handles link changes. A poll error counts as
// an update so the application re-examines its state.
func (p *Processor) Update() poll.UpdateState {
	changed, err := p.poll()

	state := poll.FromBool(changed)
	if err != nil {
		p.pollFailed(err, "poll")
		state = poll.Updated
	}

	switch up := p.phy.LinkUp(); {
	case up && p.linkReset:
		p.linkReset = false
		p.logLink("DOWN", "UP")
	case !up && !p.linkReset:
		p.linkReset = true
		p.stats.LinkResets++
		p.logLink("UP", "DOWN")
		p.stack.HandleLinkReset()
	}

	return state
}

// Egress polls the stack so queued outbound data reaches the wire. Errors
// are counted and logged like those of Update.
func (p *Processor) Egress() {
	if _, err := p.poll(); err != nil {
		p.pollFailed(err, "egress")
	}
}

// LinkDown reports whether the processor has seen the link drop and not yet return.
func (p *Processor) LinkDown() bool {
	return p.linkReset
}

// Stats returns the processor counters.
func (p *Processor) Stats() Stats {
	return p.stats
}

func (p *Processor) poll() (bool, error) {
	p.stats.Polls++
	return p.stack.Poll(p.clock.Now())
}

func (p *Processor) logLink(from, to string) {
	p.logger.Log(log.Event{
		Timestamp: p.clock.Now(),
		ClientID:  clientID,
		Layer:     log.LayerNetwork,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityLink,
			OldState: from,
			NewState: to,
		},
	})
}

func (p *Processor) pollFailed(err error, context string) {
	p.stats.PollErrors++
	p.logger.Log(log.Event{
		Timestamp: p.clock.Now(),
		ClientID:  clientID,
		Layer:     log.LayerNetwork,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: log.LayerStack, Message: err.Error(), Context: context},
	})
}
