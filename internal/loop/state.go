package loop

import (
	"errors"
	"fmt"

	"taskflow/internal/logging"
)

// State is a phase of one loop run.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingProposal State = "awaiting_proposal"
	StateValidating       State = "validating"
	StateApplying         State = "applying"
	StateCorrecting       State = "correcting"
	StateDone             State = "done"
)

// Event moves the loop between states.
type Event string

const (
	EventStart      Event = "start"
	EventProposed   Event = "proposed"    // Extractor returned operations
	EventEmpty      Event = "empty"       // Extractor returned no operations
	EventFailed     Event = "failed"      // Extractor call failed
	EventFatal      Event = "fatal"       // Backing service unreachable on the first call
	EventAccepted   Event = "accepted"    // Validator accepted the batch
	EventRejected   Event = "rejected"    // Validator rejected the batch
	EventApplied    Event = "applied"     // Batch applied, extractor not finished
	EventFinished   Event = "finished"    // Batch applied and extractor signalled done
	EventApplyError Event = "apply_error" // Engine refused an operation mid-batch
	EventRetry      Event = "retry"
	EventCapReached Event = "cap_reached"
	EventCancelled  Event = "cancelled"
)

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("invalid transition")

type transitionKey struct {
	From  State
	Event Event
}

// transitions is the complete set of legal moves:
//
//	idle -> awaiting_proposal -> validating -> applying -> done
//	                 ^               |            |
//	                 +-- correcting <+------------+
var transitions = map[transitionKey]State{
	{StateIdle, EventStart}: StateAwaitingProposal,

	{StateAwaitingProposal, EventProposed}:   StateValidating,
	{StateAwaitingProposal, EventEmpty}:      StateDone,
	{StateAwaitingProposal, EventFailed}:     StateCorrecting,
	{StateAwaitingProposal, EventFatal}:      StateDone,
	{StateAwaitingProposal, EventCapReached}: StateDone,
	{StateAwaitingProposal, EventCancelled}:  StateDone,

	{StateValidating, EventAccepted}: StateApplying,
	{StateValidating, EventRejected}: StateCorrecting,

	{StateApplying, EventApplied}:    StateAwaitingProposal,
	{StateApplying, EventFinished}:   StateDone,
	{StateApplying, EventApplyError}: StateCorrecting,

	{StateCorrecting, EventRetry}: StateAwaitingProposal,
}

// HistoryEntry records one transition.
type HistoryEntry struct {
	From      State `json:"from"`
	To        State `json:"to"`
	Event     Event `json:"event"`
	Iteration int   `json:"iteration"`
}

// machine tracks the state of a single run. It is not shared between runs.
type machine struct {
	state     State
	iteration int
	history   []HistoryEntry
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

func (m *machine) fire(ev Event) error {
	to, ok := transitions[transitionKey{m.state, ev}]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, m.state, ev)
	}
	m.history = append(m.history, HistoryEntry{
		From:      m.state,
		To:        to,
		Event:     ev,
		Iteration: m.iteration,
	})
	logging.Debug("loop transition",
		"from", string(m.state),
		"to", string(to),
		"event", string(ev),
		"iteration", m.iteration)
	m.state = to
	return nil
}

func (m *machine) History() []HistoryEntry {
	return append([]HistoryEntry(nil), m.history...)
}
