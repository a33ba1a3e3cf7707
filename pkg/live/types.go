package live

import "encoding/json"

// Protocol event names
const (
	EventJoin      = "phx_join"
	EventReply     = "phx_reply"
	EventLeave     = "phx_leave"
	EventClose     = "phx_close"
	EventError     = "phx_error"
	EventHeartbeat = "heartbeat"
	EventDiff      = "diff"
	EventPush      = "event"
)

// Binding names that are not wire events
const (
	BindJoin  = "join"
	BindError = "error"
	BindDiff  = EventDiff
)

// HeartbeatTopic is the reserved topic carrying liveness frames
const HeartbeatTopic = "phoenix"

// Reply statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Frame is one unit of wire communication
type Frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
	JoinRef string          `json:"join_ref,omitempty"`
}

// JoinPayload is the payload of an outbound join frame. Session and Static
// are reserved for session resumption and are empty on a first join.
type JoinPayload struct {
	Params  map[string]any `json:"params"`
	Session string         `json:"session"`
	Static  string         `json:"static"`
}

// ReplyPayload is the payload of a phx_reply frame
type ReplyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// EventPayload is the payload of an outbound application event
type EventPayload struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Value any    `json:"value"`
}

// ChannelState is the join lifecycle state of a Channel
type ChannelState uint8

const (
	StateClosed ChannelState = iota
	StatePending
	StateJoining
	StateJoined
	StateErrored
	StateLeaving
)

func (s ChannelState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StatePending:
		return "pending"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateErrored:
		return "errored"
	case StateLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}
