package live

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is reported when a frame is sent while the transport is not open
	ErrNotConnected = errors.New("transport not open")

	// ErrReconnectExhausted is reported once the reconnect attempt ceiling is reached
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// TransportError is a non-fatal send failure. The frame is dropped.
type TransportError struct {
	Op    string
	Topic string
	Event string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Topic, e.Event, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is a malformed inbound frame or payload. The connection stays open.
type ParseError struct {
	Data []byte
	Err  error
}

func (e *ParseError) Error() string {
	const max = 64
	data := e.Data
	if len(data) > max {
		data = data[:max]
	}
	return fmt.Sprintf("parse frame %q: %v", data, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// JoinError is a join rejected by the server
type JoinError struct {
	Topic   string
	Status  string
	Reason  string
	Payload json.RawMessage
}

func (e *JoinError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("join %s: %s: %s", e.Topic, e.Status, e.Reason)
	}
	return fmt.Sprintf("join %s: %s", e.Topic, e.Status)
}
