package escrow

import (
	"errors"
	"fmt"

	"github.com/sudo-init-do/agrihub/internal/workitem"
)

var (
	ErrInvalidTransition   = errors.New("invalid payment transition")
	ErrBlocked             = errors.New("waiting on other party")
	ErrWrongFlow           = errors.New("operation not available for this payment flow")
	ErrNegotiationOpen     = errors.New("negotiation still open")
	ErrNegotiationRejected = errors.New("negotiation was rejected")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// TransitionError reports a status change the current state does not allow.
type TransitionError struct {
	Action string
	From   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s payment in status '%s'", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// BlockedError is a user-actionable guard result: the action is valid but the
// other party has to move first. WaitingOn is empty when an outside resolver
// (dispute handling) holds the next step.
type BlockedError struct {
	Action    string
	WaitingOn workitem.Role
	Reason    string
}

func (e *BlockedError) Error() string {
	if e.WaitingOn == "" {
		return fmt.Sprintf("%s blocked: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("%s blocked: waiting on %s (%s)", e.Action, e.WaitingOn, e.Reason)
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }
