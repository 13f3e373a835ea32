package painter

import (
	"errors"
	"fmt"
)

// ProtocolError reports an inbound message that could not be applied.
//
// Protocol errors are never fatal: the message is dropped, painter state is
// left as it was, and the error is logged by the processing loop.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// Conn is the connection the message arrived on (0 when unknown).
	Conn uint32

	// Details contains additional context.
	Details map[string]string
}

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeUnknownTag indicates a message with no recognized tag.
	ErrCodeUnknownTag ProtocolErrorCode = "UNKNOWN_TAG"

	// ErrCodeUnknownConnection indicates a message from a connection that
	// never announced itself with CONN_READY.
	ErrCodeUnknownConnection ProtocolErrorCode = "UNKNOWN_CONNECTION"

	// ErrCodeNoRunningCommand indicates a REPLY while no command is in flight.
	ErrCodeNoRunningCommand ProtocolErrorCode = "NO_RUNNING_COMMAND"

	// ErrCodeReplyMismatch indicates a REPLY whose id is not the head command.
	ErrCodeReplyMismatch ProtocolErrorCode = "REPLY_ID_MISMATCH"

	// ErrCodeMalformedBody indicates a body that does not follow its tag's grammar.
	ErrCodeMalformedBody ProtocolErrorCode = "MALFORMED_BODY"

	// ErrCodeUnknownVerb indicates a reply to a command verb with no reply grammar.
	ErrCodeUnknownVerb ProtocolErrorCode = "UNKNOWN_VERB"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Conn != 0 {
		return fmt.Sprintf("%s: %s (conn=%d)", e.Code, e.Message, e.Conn)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsProtocolError returns true if err is, or wraps, a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsReplyMismatch returns true for stale, duplicate or unsolicited replies.
// Uses errors.As to handle wrapped errors.
func IsReplyMismatch(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeReplyMismatch || pe.Code == ErrCodeNoRunningCommand
	}
	return false
}

func newProtocolError(code ProtocolErrorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrZeroVersion is returned for update requests with version 0, which
// means "nothing committed yet" and can never be delivered.
var ErrZeroVersion = errors.New("version 0 is not a deliverable document version")

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("painter is closed")
