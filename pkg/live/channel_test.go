package live_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recera/liveclient/internal/livetest"
	"github.com/recera/liveclient/pkg/live"
)

const settle = 30 * time.Millisecond

func newTestLiveSocket(t *testing.T, pipe *livetest.Pipe, opts ...live.Option) *live.LiveSocket {
	t.Helper()
	base := []live.Option{
		live.WithPolicy(fastPolicy(0)),
		live.WithSocketOptions(live.WithTransport(pipe), live.WithHeartbeatInterval(0)),
	}
	ls := live.NewLiveSocket("ws://test/live", append(base, opts...)...)
	t.Cleanup(ls.Disconnect)
	return ls
}

// connected returns a live socket with an open connection and its server end
func connected(t *testing.T) (*live.LiveSocket, *livetest.PipeConn) {
	t.Helper()
	pipe := livetest.NewPipe()
	ls := newTestLiveSocket(t, pipe)
	ls.Connect()
	server := pipe.Accept(t)
	require.Eventually(t, ls.Connected, livetest.DefaultTimeout, time.Millisecond)
	return ls, server
}

// barrier sends a frame on a private event and waits until the client has
// dispatched it, so every earlier frame has been handled too
func barrier(t *testing.T, ch *live.Channel, server *livetest.PipeConn) {
	t.Helper()
	done := make(chan struct{})
	unsubscribe := ch.On("barrier", func(json.RawMessage) { close(done) })
	defer unsubscribe()

	server.Send(live.Frame{Topic: ch.Topic(), Event: "barrier", Payload: []byte(`{}`)})
	select {
	case <-done:
	case <-time.After(livetest.DefaultTimeout):
		t.Fatal("barrier frame not dispatched")
	}
}

func joinAndAck(t *testing.T, ls *live.LiveSocket, server *livetest.PipeConn, topic string) *live.Channel {
	t.Helper()
	ch := ls.Channel(topic, nil)
	ch.Join()
	join := server.Next()
	require.Equal(t, live.EventJoin, join.Event)
	server.Reply(join, live.StatusOK, map[string]any{})
	require.Eventually(t, func() bool { return ch.State() == live.StateJoined }, livetest.DefaultTimeout, time.Millisecond)
	return ch
}

func TestChannel_JoinFrame(t *testing.T) {
	ls, server := connected(t)

	ch := ls.Channel("lv:counter", map[string]any{"_csrf_token": "abc"})
	assert.Equal(t, live.StateClosed, ch.State())

	ch.Join()
	assert.Equal(t, live.StateJoining, ch.State())

	f := server.Next()
	assert.Equal(t, "lv:counter", f.Topic)
	assert.Equal(t, live.EventJoin, f.Event)
	assert.NotEmpty(t, f.Ref)
	assert.Equal(t, f.Ref, f.JoinRef)
	assert.JSONEq(t, `{"params":{"_csrf_token":"abc"},"session":"","static":""}`, string(f.Payload))
}

func TestChannel_JoinIsIdempotent(t *testing.T) {
	ls, server := connected(t)
	ch := ls.Channel("lv:a", nil)

	ch.Join()
	ch.Join()
	ch.Join()

	server.Next()
	server.ExpectNone(settle)
	assert.Equal(t, live.StateJoining, ch.State())
}

func TestChannel_JoinWhileDisconnectedIsPending(t *testing.T) {
	pipe := livetest.NewPipe()
	ls := newTestLiveSocket(t, pipe)

	ch := ls.Channel("lv:a", nil)
	ch.Join()
	assert.Equal(t, live.StatePending, ch.State())

	ls.Connect()
	server := pipe.Accept(t)

	f := server.Next()
	assert.Equal(t, live.EventJoin, f.Event)
	assert.Equal(t, live.StateJoining, ch.State())
}

func TestChannel_JoinAccepted(t *testing.T) {
	ls, server := connected(t)
	ch := ls.Channel("lv:a", nil)

	responses := make(chan json.RawMessage, 1)
	ch.On(live.BindJoin, func(p json.RawMessage) { responses <- p })
	ch.On(live.BindError, func(json.RawMessage) { t.Error("error handler called on accepted join") })

	ch.Join()
	server.Reply(server.Next(), live.StatusOK, map[string]any{"rendered": map[string]any{"s": []string{"hi"}, "d": []any{}}})

	select {
	case p := <-responses:
		assert.JSONEq(t, `{"rendered":{"s":["hi"],"d":[]}}`, string(p))
	case <-time.After(livetest.DefaultTimeout):
		t.Fatal("join handler not called")
	}
	assert.Equal(t, live.StateJoined, ch.State())
	assert.NoError(t, ch.Err())
}

func TestChannel_JoinRejected(t *testing.T) {
	ls, server := connected(t)
	ch := ls.Channel("lv:a", nil)

	payloads := make(chan json.RawMessage, 1)
	ch.On(live.BindError, func(p json.RawMessage) { payloads <- p })
	ch.On(live.BindJoin, func(json.RawMessage) { t.Error("join handler called on rejected join") })

	ch.Join()
	server.Reply(server.Next(), live.StatusError, map[string]any{"reason": "unauthorized"})

	select {
	case p := <-payloads:
		assert.JSONEq(t, `{"status":"error","response":{"reason":"unauthorized"}}`, string(p))
	case <-time.After(livetest.DefaultTimeout):
		t.Fatal("error handler not called")
	}
	assert.Equal(t, live.StateErrored, ch.State())

	var joinErr *live.JoinError
	require.ErrorAs(t, ch.Err(), &joinErr)
	assert.Equal(t, "unauthorized", joinErr.Reason)
	assert.Equal(t, "lv:a", joinErr.Topic)

	// no automatic retry
	server.ExpectNone(settle)
}

func TestChannel_MismatchedReplyIgnored(t *testing.T) {
	ls, server := connected(t)
	ch := ls.Channel("lv:a", nil)

	joinCalls, errorCalls := 0, 0
	ch.On(live.BindJoin, func(json.RawMessage) { joinCalls++ })
	ch.On(live.BindError, func(json.RawMessage) { errorCalls++ })
	replies := make(chan json.RawMessage, 2)
	ch.On(live.EventReply, func(p json.RawMessage) { replies <- p })

	ch.Join()
	join := server.Next()

	stale := join
	stale.Ref = "not-the-join-ref"
	server.Reply(stale, live.StatusOK, nil)
	server.Reply(stale, live.StatusError, nil)
	barrier(t, ch, server)

	assert.Equal(t, live.StateJoining, ch.State())
	assert.Zero(t, joinCalls)
	assert.Zero(t, errorCalls)
	assert.Len(t, replies, 2)
}

func TestChannel_DispatchByEvent(t *testing.T) {
	ls, server := connected(t)
	ch := joinAndAck(t, ls, server, "lv:a")

	var order []string
	diffs := make(chan json.RawMessage, 2)
	ch.On(live.BindDiff, func(p json.RawMessage) {
		order = append(order, "diff-1")
		diffs <- p
	})
	ch.On(live.BindDiff, func(json.RawMessage) { order = append(order, "diff-2") })
	custom := make(chan json.RawMessage, 1)
	ch.On("flash", func(p json.RawMessage) { custom <- p })

	server.Send(live.Frame{Topic: "lv:a", Event: "diff", Payload: []byte(`{"d":["1"]}`)})
	server.Send(live.Frame{Topic: "lv:a", Event: "diff", Payload: []byte(`"{\"d\":[\"2\"]}"`)})
	server.Send(live.Frame{Topic: "lv:a", Event: "flash", Payload: []byte(`{"msg":"saved"}`)})
	barrier(t, ch, server)

	require.Len(t, diffs, 2)
	assert.JSONEq(t, `{"d":["1"]}`, string(<-diffs))
	assert.JSONEq(t, `{"d":["2"]}`, string(<-diffs))
	assert.Equal(t, []string{"diff-1", "diff-2", "diff-1", "diff-2"}, order)
	require.Len(t, custom, 1)
	assert.JSONEq(t, `{"msg":"saved"}`, string(<-custom))
}

func TestChannel_UndecodablePayloadDropped(t *testing.T) {
	ls, server := connected(t)
	ch := joinAndAck(t, ls, server, "lv:a")

	calls := 0
	ch.On(live.BindDiff, func(json.RawMessage) { calls++ })

	server.Send(live.Frame{Topic: "lv:a", Event: "diff", Payload: []byte(`"not json"`)})
	barrier(t, ch, server)

	assert.Zero(t, calls)
	assert.True(t, ls.Connected())
}

func TestChannel_Unsubscribe(t *testing.T) {
	ls, server := connected(t)
	ch := joinAndAck(t, ls, server, "lv:a")

	kept, removed := 0, 0
	ch.On("tick", func(json.RawMessage) { kept++ })
	unsubscribe := ch.On("tick", func(json.RawMessage) { removed++ })
	unsubscribe()

	server.Send(live.Frame{Topic: "lv:a", Event: "tick", Payload: []byte(`{}`)})
	barrier(t, ch, server)

	assert.Equal(t, 1, kept)
	assert.Zero(t, removed)
}

func TestChannel_Push(t *testing.T) {
	ls, server := connected(t)
	ch := joinAndAck(t, ls, server, "lv:a")

	ch.Push("inc", map[string]any{"value": "5"})

	f := server.Next()
	assert.Equal(t, "lv:a", f.Topic)
	assert.Equal(t, live.EventPush, f.Event)
	assert.NotEmpty(t, f.Ref)
	assert.JSONEq(t, `{"type":"click","event":"inc","value":{"value":"5"}}`, string(f.Payload))
}

func TestChannel_ServerError(t *testing.T) {
	ls, server := connected(t)
	ch := joinAndAck(t, ls, server, "lv:a")

	errs := make(chan struct{}, 1)
	ch.On(live.EventError, func(json.RawMessage) { errs <- struct{}{} })

	server.Send(live.Frame{Topic: "lv:a", Event: live.EventError, Payload: []byte(`{}`)})
	barrier(t, ch, server)
	assert.Equal(t, live.StateErrored, ch.State())
	assert.Len(t, errs, 1)
}
