package live

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Handler receives a decoded payload
type Handler func(payload json.RawMessage)

// pusher is the part of Socket a channel needs
type pusher interface {
	Connected() bool
	Send(Frame)
	MakeRef() string
}

// Channel is a joinable conversation scoped to one topic
type Channel struct {
	topic    string
	params   map[string]any
	socket   pusher
	log      *zap.Logger
	metrics  *Metrics
	bindings Bindings[Handler]

	mu      sync.Mutex
	state   ChannelState
	joinRef string
	err     *JoinError
}

func newChannel(topic string, params map[string]any, socket pusher, log *zap.Logger, metrics *Metrics) *Channel {
	if params == nil {
		params = map[string]any{}
	}
	return &Channel{
		topic:   topic,
		params:  params,
		socket:  socket,
		log:     log.Named("channel").With(zap.String("topic", topic)),
		metrics: metrics,
	}
}

// Topic returns the channel's topic
func (c *Channel) Topic() string {
	return c.topic
}

// State returns the current join state
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last join rejection, if the channel is errored
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	return c.err
}

// On binds fn to event and returns a func that removes the binding. Besides
// wire event names, "join" fires on a successful join with the reply's
// response and "error" fires on a rejected join with the reply payload.
func (c *Channel) On(event string, fn Handler) func() {
	return c.bindings.On(event, fn)
}

// Join requests membership. While the transport is down the intent is
// remembered and carried out on the next open. Joining or joined channels
// ignore the call.
func (c *Channel) Join() {
	c.mu.Lock()
	switch c.state {
	case StateJoined, StateJoining:
		c.mu.Unlock()
		return
	}
	if !c.socket.Connected() {
		c.state = StatePending
		c.mu.Unlock()
		c.log.Debug("join deferred until open")
		return
	}

	ref := c.socket.MakeRef()
	c.state = StateJoining
	c.joinRef = ref
	c.err = nil
	c.mu.Unlock()

	payload, err := marshalPayload(JoinPayload{Params: c.params})
	if err != nil {
		c.log.Error("encode join", zap.Error(err))
		return
	}
	c.log.Debug("joining", zap.String("ref", ref))
	c.socket.Send(Frame{
		Topic:   c.topic,
		Event:   EventJoin,
		Payload: payload,
		Ref:     ref,
		JoinRef: ref,
	})
}

// Rejoin forces the channel closed and joins again
func (c *Channel) Rejoin() {
	c.mu.Lock()
	if c.state == StateLeaving {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()
	c.Join()
}

// Leave sends phx_leave and stops the channel from rejoining
func (c *Channel) Leave() {
	c.mu.Lock()
	joinRef := c.joinRef
	wasJoined := c.state == StateJoined || c.state == StateJoining
	c.state = StateLeaving
	c.mu.Unlock()

	if !wasJoined {
		return
	}
	c.socket.Send(Frame{
		Topic:   c.topic,
		Event:   EventLeave,
		Payload: emptyObject,
		Ref:     c.socket.MakeRef(),
		JoinRef: joinRef,
	})
}

// Push sends an application event. It does not wait for acknowledgement.
func (c *Channel) Push(event string, value any) {
	payload, err := marshalPayload(EventPayload{
		Type:  "click",
		Event: event,
		Value: value,
	})
	if err != nil {
		c.log.Error("encode push", zap.String("event", event), zap.Error(err))
		return
	}

	c.mu.Lock()
	joinRef := c.joinRef
	c.mu.Unlock()

	c.socket.Send(Frame{
		Topic:   c.topic,
		Event:   EventPush,
		Payload: payload,
		Ref:     c.socket.MakeRef(),
		JoinRef: joinRef,
	})
}

// handle dispatches one inbound frame for this topic
func (c *Channel) handle(f Frame) {
	payload, err := DecodePayload(f.Payload)
	if err != nil {
		c.metrics.incParseError()
		c.log.Warn("dropping frame", zap.String("event", f.Event), zap.Error(err))
		return
	}

	if f.Event == EventReply && c.isJoinReply(f.Ref) {
		c.handleJoinReply(payload)
		return
	}

	switch f.Event {
	case EventError:
		c.transition(StateJoined, StateErrored)
	case EventClose:
		c.transition(StateJoined, StateClosed)
	}
	c.trigger(f.Event, payload)
}

func (c *Channel) isJoinReply(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ref != "" && ref == c.joinRef
}

func (c *Channel) handleJoinReply(payload json.RawMessage) {
	var reply ReplyPayload
	if err := json.Unmarshal(payload, &reply); err != nil {
		c.metrics.incParseError()
		c.log.Warn("malformed join reply", zap.Error(err))
		return
	}

	if reply.Status == StatusOK {
		c.mu.Lock()
		c.state = StateJoined
		c.err = nil
		c.mu.Unlock()

		c.metrics.incJoin("ok")
		c.log.Info("joined")
		response := reply.Response
		if len(response) == 0 {
			response = emptyObject
		}
		c.trigger(BindJoin, response)
		return
	}

	joinErr := &JoinError{
		Topic:   c.topic,
		Status:  reply.Status,
		Reason:  reply.Reason,
		Payload: payload,
	}
	if joinErr.Reason == "" {
		joinErr.Reason = reasonFrom(reply.Response)
	}

	c.mu.Lock()
	c.state = StateErrored
	c.err = joinErr
	c.mu.Unlock()

	c.metrics.incJoin("error")
	c.log.Warn("join rejected", zap.Error(joinErr))
	c.trigger(BindError, payload)
}

// reasonFrom pulls {"reason": "..."} out of a reply response
func reasonFrom(response json.RawMessage) string {
	var body struct {
		Reason string `json:"reason"`
	}
	if len(response) == 0 || json.Unmarshal(response, &body) != nil {
		return ""
	}
	return body.Reason
}

func (c *Channel) transition(from, to ChannelState) {
	c.mu.Lock()
	if c.state == from {
		c.state = to
	}
	c.mu.Unlock()
}

func (c *Channel) trigger(event string, payload json.RawMessage) {
	for _, fn := range c.bindings.Handlers(event) {
		fn(payload)
	}
}
