package live

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var emptyObject = json.RawMessage(`{}`)

// EncodeFrame serializes a frame for the wire. A nil payload is sent as {}.
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Payload) == 0 {
		f.Payload = emptyObject
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame %s/%s: %w", f.Topic, f.Event, err)
	}
	return data, nil
}

// DecodeFrame parses a text message into a frame
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, &ParseError{Data: data, Err: err}
	}
	if f.Topic == "" || f.Event == "" {
		return Frame{}, &ParseError{Data: data, Err: fmt.Errorf("missing topic or event")}
	}
	return f, nil
}

// DecodePayload returns the structured form of a payload. Payloads that
// arrive as JSON-encoded strings are unwrapped; structured payloads pass
// through unchanged.
func DecodePayload(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return emptyObject, nil
	}
	if trimmed[0] != '"' {
		return trimmed, nil
	}

	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, &ParseError{Data: raw, Err: err}
	}
	if !json.Valid([]byte(inner)) {
		return nil, &ParseError{Data: raw, Err: fmt.Errorf("string payload is not JSON")}
	}
	return json.RawMessage(inner), nil
}

// marshalPayload encodes an outbound payload value
func marshalPayload(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
