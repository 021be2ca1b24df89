package conversation

import (
	"errors"
	"fmt"
)

// Start failures. No session is created.
var (
	ErrDialogueNotFound = errors.New("dialogue not found")
	ErrRootGated        = errors.New("dialogue root page is gated")
)

// Protocol violation kinds.
var (
	ErrIndexOutOfRange     = errors.New("response index out of range")
	ErrUnknownSession      = errors.New("unknown or ended session")
	ErrNotAwaitingResponse = errors.New("session is not awaiting a response")
	ErrAlreadyActive       = errors.New("initiator already has an active session")
)

// Content logic error kinds.
var (
	ErrNoBranchMatch  = errors.New("no branch response matched")
	ErrRecursionLimit = errors.New("branch chain too deep")
)

// ProtocolViolation is malformed or late input for a session. The offending
// session, if any, has been ended.
type ProtocolViolation struct {
	Kind      error
	SessionID string
	Detail    string
}

func (e *ProtocolViolation) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol violation in session %s: %v", e.SessionID, e.Kind)
	}
	return fmt.Sprintf("protocol violation in session %s: %v: %s", e.SessionID, e.Kind, e.Detail)
}

func (e *ProtocolViolation) Unwrap() error { return e.Kind }

// ContentLogicError is an authoring defect found while running a dialogue.
// The session has been ended.
type ContentLogicError struct {
	Kind       error
	SessionID  string
	DialogueID uint16
	PageID     uint16
}

func (e *ContentLogicError) Error() string {
	return fmt.Sprintf("dialogue %d page %d: %v", e.DialogueID, e.PageID, e.Kind)
}

func (e *ContentLogicError) Unwrap() error { return e.Kind }
