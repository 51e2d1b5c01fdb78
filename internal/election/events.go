package election

import (
	"time"

	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/types"
)

// event is anything the single-consumer loop in Engine.run dispatches.
// Decoded messages, timer ticks, and scheduled one-shot timeouts are all
// events, so every state mutation funnels through the same serialization
// point.
type event interface{}

type inboundEvent struct {
	from types.NodeID
	msg  protocol.Message
}

type heartbeatTickEvent struct{}

type livenessTickEvent struct{}

// waitTimeoutEvent fires when an election-wait, successor-wait,
// discovery-wait, or election-hard-timeout deadline elapses. epoch guards
// against acting on a timer that was scheduled for a phase the node has
// since moved past; nothing is ever forcibly cancelled, stale timers are
// simply ignored on arrival.
type waitTimeoutEvent struct {
	epoch uint64
	kind  waitKind
}

type waitKind int

const (
	waitDiscovery waitKind = iota
	waitElection
	waitElectionHard
)

// postEvent enqueues ev, or drops it if the engine has shut down.
func (e *Engine) postEvent(ev event) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// scheduleAfter posts ev after d elapses, unless the engine shuts down
// first.
func (e *Engine) scheduleAfter(d time.Duration, ev event) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			e.postEvent(ev)
		case <-e.ctx.Done():
		}
	}()
}
