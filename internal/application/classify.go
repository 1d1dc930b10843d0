package application

import (
	"fmt"

	"availsdk/internal/domain"
)

// ResultState is the submitter's view of a watched extrinsic.
type ResultState int

const (
	StatePending ResultState = iota
	StateInBlock
	StateFinalized
	StateDropped
	StateInvalid
	StateUsurped
	StateFinalityTimeout
	StateError
)

func (s ResultState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInBlock:
		return "in_block"
	case StateFinalized:
		return "finalized"
	case StateDropped:
		return "dropped"
	case StateInvalid:
		return "invalid"
	case StateUsurped:
		return "usurped"
	case StateFinalityTimeout:
		return "finality_timeout"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("ResultState(%d)", int(s))
	}
}

// Outcome reports whether a status update resolved the submission.
type Outcome struct {
	Done   bool
	Failed bool
	Reason string
}

// Classify advances the state machine by one status update. Terminal states
// never change again.
func Classify(state ResultState, status domain.TxStatus, wait domain.WaitFor) (ResultState, Outcome) {
	switch state {
	case StatePending, StateInBlock:
	default:
		return state, Outcome{Done: true, Failed: state != StateFinalized}
	}

	switch status.Kind {
	case domain.StatusPending, domain.StatusFuture, domain.StatusReady, domain.StatusBroadcast:
		return state, Outcome{}
	case domain.StatusRetracted:
		return StatePending, Outcome{}
	case domain.StatusInBlock:
		if wait == domain.WaitForInclusion {
			return StateInBlock, Outcome{Done: true}
		}
		return StateInBlock, Outcome{}
	case domain.StatusFinalized:
		return StateFinalized, Outcome{Done: true}
	case domain.StatusDropped:
		return StateDropped, Outcome{Done: true, Failed: true, Reason: domain.ReasonDropped}
	case domain.StatusInvalid:
		return StateInvalid, Outcome{Done: true, Failed: true, Reason: domain.ReasonInvalid}
	case domain.StatusUsurped:
		return StateUsurped, Outcome{Done: true, Failed: true, Reason: domain.ReasonUsurped}
	case domain.StatusFinalityTimeout:
		return StateFinalityTimeout, Outcome{Done: true, Failed: true, Reason: domain.ReasonFinalityTimeout}
	case domain.StatusError:
		reason := "transaction error"
		if status.Err != nil {
			reason = fmt.Sprintf("transaction error: %v", status.Err)
		}
		return StateError, Outcome{Done: true, Failed: true, Reason: reason}
	default:
		return state, Outcome{}
	}
}
