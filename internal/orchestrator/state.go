package orchestrator

import (
	"main/pkg/exception"

	"github.com/yanun0323/errors"
)

// SourceState tracks one source's progress through a run.
type SourceState uint16

const (
	SourceStateUnknown SourceState = iota
	SourceStatePending
	SourceStateExtracting
	SourceStateNormalizing
	SourceStateLoading
	SourceStateCheckpointing
	SourceStateDone
	SourceStateFailed
)

func (s SourceState) String() string {
	switch s {
	case SourceStatePending:
		return "pending"
	case SourceStateExtracting:
		return "extracting"
	case SourceStateNormalizing:
		return "normalizing"
	case SourceStateLoading:
		return "loading"
	case SourceStateCheckpointing:
		return "checkpointing"
	case SourceStateDone:
		return "done"
	case SourceStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func isTerminal(state SourceState) bool {
	switch state {
	case SourceStateDone, SourceStateFailed:
		return true
	default:
		return false
	}
}

// allowed lists the forward edges of the per-source pipeline. Failed is
// reachable from every non-terminal state; the batch loop cycles back from
// Checkpointing to Extracting.
var allowed = map[SourceState][]SourceState{
	SourceStatePending:       {SourceStateExtracting},
	SourceStateExtracting:    {SourceStateNormalizing, SourceStateCheckpointing},
	SourceStateNormalizing:   {SourceStateLoading},
	SourceStateLoading:       {SourceStateCheckpointing},
	SourceStateCheckpointing: {SourceStateExtracting, SourceStateDone},
}

// machine validates one source's state transitions during a run.
type machine struct {
	sourceID string
	state    SourceState
}

func newMachine(sourceID string) *machine {
	return &machine{sourceID: sourceID, state: SourceStatePending}
}

// to moves the machine to the next state, rejecting edges the pipeline
// never takes.
func (m *machine) to(next SourceState) error {
	if isTerminal(m.state) {
		return errors.Wrap(exception.ErrInvalidTransition, m.sourceID+": "+m.state.String()+" is terminal")
	}
	if next == SourceStateFailed {
		m.state = next
		return nil
	}
	for _, candidate := range allowed[m.state] {
		if candidate == next {
			m.state = next
			return nil
		}
	}
	return errors.Wrap(exception.ErrInvalidTransition, m.sourceID+": "+m.state.String()+" -> "+next.String())
}
