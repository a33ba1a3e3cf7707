// Package liveview connects a channel to a renderer: server renders flow into
// the document and captured interactions flow back as pushes.
package liveview

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/recera/liveclient/pkg/live"
	"github.com/recera/liveclient/pkg/render"
)

const (
	renderedEvent    = "rendered"
	renderErrorEvent = "render_error"
)

// joinResponse is the body of an accepted join
type joinResponse struct {
	Rendered *render.Patch `json:"rendered"`
}

// Option configures a View
type Option func(*View)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(v *View) {
		if l != nil {
			v.log = l
		}
	}
}

// View is one mounted live view
type View struct {
	ls       *live.LiveSocket
	channel  *live.Channel
	renderer *render.Renderer
	log      *zap.Logger

	rendered  live.Bindings[func()]
	renderErr live.Bindings[func(error)]

	mu      sync.Mutex
	unbind  []func()
	mounted bool
}

// Mount joins topic on ls and renders its patches with r
func Mount(ls *live.LiveSocket, r *render.Renderer, topic string, params map[string]any, opts ...Option) *View {
	v := &View{
		ls:       ls,
		channel:  ls.Channel(topic, params),
		renderer: r,
		log:      zap.NewNop(),
		mounted:  true,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.Named("liveview").With(zap.String("topic", topic))

	v.unbind = append(v.unbind,
		v.channel.On(live.BindJoin, v.handleJoin),
		v.channel.On(live.BindDiff, v.handleDiff),
	)
	r.BindEvents(v.channel.Push)
	v.channel.Join()
	return v
}

// Channel returns the view's channel
func (v *View) Channel() *live.Channel {
	return v.channel
}

// Renderer returns the view's renderer
func (v *View) Renderer() *render.Renderer {
	return v.renderer
}

// OnRender registers fn to run after every successful render
func (v *View) OnRender(fn func()) func() {
	return v.rendered.On(renderedEvent, fn)
}

// OnRenderError registers fn to receive render failures
func (v *View) OnRenderError(fn func(error)) func() {
	return v.renderErr.On(renderErrorEvent, fn)
}

// Unmount stops rendering, unbinds interactions and leaves the channel.
// Calling it again does nothing.
func (v *View) Unmount() {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = false
	unbind := v.unbind
	v.unbind = nil
	v.mu.Unlock()

	for _, fn := range unbind {
		fn()
	}
	v.renderer.BindEvents(nil)
	v.ls.Leave(v.channel.Topic())
}

func (v *View) handleJoin(payload json.RawMessage) {
	var resp joinResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		v.fail(fmt.Errorf("liveview: join response: %w", err))
		return
	}
	if resp.Rendered == nil {
		v.log.Debug("join reply carried no render")
		return
	}
	v.apply(resp.Rendered)
}

func (v *View) handleDiff(payload json.RawMessage) {
	p, err := render.ParsePatch(payload)
	if err != nil {
		v.fail(fmt.Errorf("liveview: diff: %w", err))
		return
	}
	v.apply(p)
}

func (v *View) apply(p *render.Patch) {
	if err := v.renderer.Apply(p); err != nil {
		v.fail(err)
		return
	}
	for _, fn := range v.rendered.Handlers(renderedEvent) {
		fn()
	}
}

func (v *View) fail(err error) {
	v.log.Error("render failed", zap.Error(err))
	for _, fn := range v.renderErr.Handlers(renderErrorEvent) {
		fn(err)
	}
}
