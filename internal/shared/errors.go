package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected       = errors.New("connection not open")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrUploadRejected     = errors.New("chunk submitted while uploader inactive")
	ErrCaptureUnavailable = errors.New("capture source unavailable")
)

// TransportError wraps a connection-level failure. Recoverable until the
// reconnect bound is reached.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError marks a malformed or unexpected inbound message. The message
// is dropped and no state changes.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}

// DecodeError marks a malformed audio payload. The frame is dropped and
// playback continues.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode: " + e.Reason
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}
