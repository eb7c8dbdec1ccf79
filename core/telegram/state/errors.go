package state

import "errors"

const (
	// CodeResponseTimeout marks a wait that reached its deadline.
	CodeResponseTimeout = "RESPONSE_TIMEOUT"
	// CodeResponseCommand marks a wait superseded by a new command.
	CodeResponseCommand = "RESPONSE_COMMAND"
)

// ConversationError is the expected outcome of a wait that ended without a reply.
type ConversationError struct {
	code string
}

func (e *ConversationError) Error() string { return "conversation: " + e.code }

// Code returns the stable error code.
func (e *ConversationError) Code() string { return e.code }

var (
	// ErrResponseTimeout rejects a wait whose deadline passed.
	ErrResponseTimeout = &ConversationError{code: CodeResponseTimeout}
	// ErrResponseCommand rejects a wait superseded by a new command.
	ErrResponseCommand = &ConversationError{code: CodeResponseCommand}

	// ErrWaitExists reports a second wait for a key that already has a live one.
	ErrWaitExists = errors.New("state: wait already pending")
	// ErrInvalidTimeout reports a non-positive wait timeout.
	ErrInvalidTimeout = errors.New("state: timeout must be positive")
	// ErrClosed rejects waits once the registry is closed.
	ErrClosed = errors.New("state: registry closed")
)

// IsConversationError reports whether err ends a wait without a reply.
func IsConversationError(err error) bool {
	var ce *ConversationError
	return errors.As(err, &ce)
}
