package optimistic

import (
	"errors"
	"fmt"

	"github.com/callingitnow/callit/internal/client"
)

var (
	ErrNotAuthenticated = errors.New("sign in required")
	ErrRequestInFlight  = errors.New("request already in flight")
	ErrBackingDisabled  = errors.New("backing is not allowed for this call")
	ErrAlreadyBacked    = errors.New("already backed")
	ErrInvalidVote      = errors.New("vote must be 1 or -1")
)

// Messages shown to the user when an action fails.
const (
	MsgVoteFailed        = "Vote failed. Please try again."
	MsgBackFailed        = "Failed to back this call."
	MsgCommentVoteFailed = "Failed to cast vote."
)

type FailureKind int

const (
	BackendRejected FailureKind = iota + 1
	NetworkUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case BackendRejected:
		return "backend rejected"
	case NetworkUnavailable:
		return "network unavailable"
	}
	return "unknown"
}

// ActionError reports a failed request after local state was restored.
type ActionError struct {
	Action  ActionKind
	Kind    FailureKind
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", e.Action, e.Message, e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func newActionError(action ActionKind, msg string, err error) *ActionError {
	kind := BackendRejected
	if errors.Is(err, client.ErrNetwork) {
		kind = NetworkUnavailable
	}
	return &ActionError{Action: action, Kind: kind, Message: msg, Err: err}
}
