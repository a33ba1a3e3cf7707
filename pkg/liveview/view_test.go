package liveview_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/recera/liveclient/internal/livetest"
	"github.com/recera/liveclient/pkg/dom"
	"github.com/recera/liveclient/pkg/live"
	"github.com/recera/liveclient/pkg/liveview"
	"github.com/recera/liveclient/pkg/render"
)

const shell = `<!DOCTYPE html><html><body><main id="app"></main></body></html>`

func newRenderer(t *testing.T) (*render.Renderer, *dom.Document) {
	t.Helper()
	doc, err := dom.ParseString(shell)
	require.NoError(t, err)
	r, err := render.New(doc, "app")
	require.NoError(t, err)
	return r, doc
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(livetest.DefaultTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func counter(count string) map[string]any {
	return map[string]any{
		"rendered": map[string]any{
			"s": []string{`<p id="count">count: `, `</p><button phx-click="inc">+</button>`},
			"d": []any{count},
		},
	}
}

func TestView_EndToEnd(t *testing.T) {
	var joinParams map[string]any
	server := livetest.NewServer(t, func(topic string, params map[string]any) (string, any) {
		joinParams = params
		return live.StatusOK, counter("0")
	})

	ls := live.NewLiveSocket(server.URL(), live.WithSocketOptions(live.WithHeartbeatInterval(0)))
	t.Cleanup(ls.Disconnect)
	r, doc := newRenderer(t)

	view := liveview.Mount(ls, r, "lv:counter", map[string]any{"token": "t1"})
	renders := make(chan struct{}, 4)
	view.OnRender(func() { renders <- struct{}{} })
	view.OnRenderError(func(err error) { t.Errorf("unexpected render error: %v", err) })

	ls.Connect()
	waitFor(t, renders, "initial render")

	server.Expect(t, live.EventJoin)
	assert.Equal(t, map[string]any{"token": "t1"}, joinParams)
	assert.Equal(t, live.StateJoined, view.Channel().State())

	var text string
	doc.Read(func() { text = doc.Text(doc.ElementByID("count")) })
	assert.Equal(t, "count: 0", text)

	// interaction flows back as a push
	button := mustFirst(t, doc, "button")
	handled, prevent := r.Dispatch(render.Interaction{Kind: render.Click, Target: button})
	require.True(t, handled)
	assert.True(t, prevent)

	push := server.Expect(t, live.EventPush)
	assert.Equal(t, "lv:counter", push.Topic)
	assert.JSONEq(t, `{"type":"click","event":"inc","value":{"value":{}}}`, string(push.Payload))

	// server diff without static reuses the template
	server.Broadcast(live.Frame{Topic: "lv:counter", Event: "diff", Payload: []byte(`{"d":["1"]}`)})
	waitFor(t, renders, "diff render")
	doc.Read(func() { text = doc.Text(doc.ElementByID("count")) })
	assert.Equal(t, "count: 1", text)
	assert.Same(t, button, mustFirst(t, doc, "button"))

	view.Unmount()
	view.Unmount()
	leave := server.Expect(t, live.EventLeave)
	assert.Equal(t, "lv:counter", leave.Topic)

	handled, _ = r.Dispatch(render.Interaction{Kind: render.Click, Target: button})
	assert.False(t, handled)
	_, ok := ls.Lookup("lv:counter")
	assert.False(t, ok)
}

func TestView_RendersAfterReconnect(t *testing.T) {
	var joins atomic.Int32
	server := livetest.NewServer(t, func(string, map[string]any) (string, any) {
		if joins.Add(1) == 1 {
			return live.StatusOK, counter("first")
		}
		return live.StatusOK, counter("second")
	})

	ls := live.NewLiveSocket(server.URL(),
		live.WithPolicy(live.ReconnectPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
		live.WithSocketOptions(live.WithHeartbeatInterval(0)))
	t.Cleanup(ls.Disconnect)
	r, doc := newRenderer(t)

	view := liveview.Mount(ls, r, "lv:counter", nil)
	renders := make(chan struct{}, 4)
	view.OnRender(func() { renders <- struct{}{} })

	ls.Connect()
	waitFor(t, renders, "first render")

	server.DropAll()
	waitFor(t, renders, "render after rejoin")

	var text string
	doc.Read(func() { text = doc.Text(doc.ElementByID("count")) })
	assert.Equal(t, "count: second", text)
}

func TestView_RenderErrors(t *testing.T) {
	pipe := livetest.NewPipe()
	ls := live.NewLiveSocket("ws://test/live", live.WithSocketOptions(live.WithTransport(pipe), live.WithHeartbeatInterval(0)))
	t.Cleanup(ls.Disconnect)
	r, _ := newRenderer(t)

	view := liveview.Mount(ls, r, "lv:a", nil)
	errs := make(chan error, 4)
	view.OnRenderError(func(err error) { errs <- err })

	ls.Connect()
	server := pipe.Accept(t)
	join := server.Next()
	server.Reply(join, live.StatusOK, map[string]any{})

	// no template yet
	server.Send(live.Frame{Topic: "lv:a", Event: "diff", Payload: []byte(`{"d":["x"]}`)})
	assert.ErrorIs(t, waitFor(t, errs, "missing template"), render.ErrMissingTemplate)

	server.Send(live.Frame{Topic: "lv:a", Event: "diff", Payload: []byte(`{"s":"bad","d":[]}`)})
	assert.Error(t, waitFor(t, errs, "bad patch"))
}

func mustFirst(t *testing.T, doc *dom.Document, selector string) (n *html.Node) {
	t.Helper()
	doc.Read(func() {
		var err error
		n, err = doc.QueryFirst(selector)
		require.NoError(t, err)
	})
	require.NotNil(t, n)
	return n
}
