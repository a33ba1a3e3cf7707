package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/recera/liveclient/cmd/livectl/internal/config"
	"github.com/recera/liveclient/cmd/livectl/internal/ui"
	"github.com/recera/liveclient/pkg/dom"
	"github.com/recera/liveclient/pkg/live"
	"github.com/recera/liveclient/pkg/liveview"
	"github.com/recera/liveclient/pkg/render"
)

// observer receives session events for display
type observer interface {
	Rendered(preview, markup string)
	Status(connected bool, state string)
	Failed(err error)
}

// session is one mounted live view and the document it renders into
type session struct {
	doc      *dom.Document
	renderer *render.Renderer
	ls       *live.LiveSocket
	view     *liveview.View
	unbind   []func()
}

// newSession builds the document, renderer and live socket for cfg. It
// does not connect.
func newSession(cfg config.Config, log *zap.Logger, metrics *live.Metrics, obs observer, socketOpts ...live.SocketOption) (*session, error) {
	doc, err := loadPage(cfg.Page, cfg.Container)
	if err != nil {
		return nil, err
	}

	r, err := render.New(doc, cfg.Container, render.WithLogger(log))
	if err != nil {
		return nil, err
	}

	opts := []live.SocketOption{live.WithHeartbeatInterval(cfg.Heartbeat)}
	ls := live.NewLiveSocket(cfg.URL,
		live.WithPolicy(cfg.Policy()),
		live.WithLiveLogger(log),
		live.WithLiveMetrics(metrics),
		live.WithSocketOptions(append(opts, socketOpts...)...),
	)

	s := &session{
		doc:      doc,
		renderer: r,
		ls:       ls,
		view:     liveview.Mount(ls, r, cfg.Topic, cfg.JoinParams(), liveview.WithLogger(log)),
	}

	status := func() { obs.Status(ls.Connected(), s.view.Channel().State().String()) }
	s.unbind = append(s.unbind,
		ls.Socket().OnOpen(status),
		ls.Socket().OnClose(status),
		ls.Socket().OnError(obs.Failed),
		s.view.OnRenderError(obs.Failed),
		s.view.OnRender(func() {
			obs.Rendered(s.Preview(), r.Markup())
			status()
		}),
		s.view.Channel().On(live.BindError, func(json.RawMessage) {
			obs.Failed(s.view.Channel().Err())
			status()
		}),
	)
	return s, nil
}

// loadPage reads the HTML shell at path, or builds one holding an empty
// container
func loadPage(path, container string) (*dom.Document, error) {
	if path == "" {
		doc := dom.New()
		doc.Write(func() {
			div := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div, Attr: []html.Attribute{{Key: "id", Val: container}}}
			doc.Body().AppendChild(div)
		})
		return doc, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	return dom.Parse(f)
}

// Start connects; the view joins once the socket opens
func (s *session) Start() {
	s.ls.Connect()
}

// Close leaves the view and stops the socket
func (s *session) Close() {
	for _, fn := range s.unbind {
		fn()
	}
	s.view.Unmount()
	s.ls.Disconnect()
}

// Preview returns the readable text of the container
func (s *session) Preview() string {
	var text string
	s.doc.Read(func() { text = s.doc.Text(s.renderer.Container()) })
	return text
}

// Run executes a prompt command
func (s *session) Run(c ui.Command) error {
	if c.Verb == ui.VerbReconnect {
		s.ls.Disconnect()
		s.ls.Connect()
		return nil
	}

	target, err := s.find(c.Selector)
	if err != nil {
		return err
	}

	var kind render.InteractionKind
	switch c.Verb {
	case ui.VerbFocus:
		s.doc.Write(func() { s.doc.Focus(target) })
		return nil
	case ui.VerbClick:
		kind = render.Click
	case ui.VerbInput:
		s.doc.Write(func() {
			s.doc.Focus(target)
			s.doc.SetValue(target, c.Text)
		})
		kind = render.Input
	case ui.VerbSubmit:
		if target.Data != "form" {
			var form *html.Node
			s.doc.Read(func() { form = dom.Closest(target, "form", s.renderer.Container()) })
			if form == nil {
				return fmt.Errorf("%q is not inside a form", c.Selector)
			}
			target = form
		}
		kind = render.Submit
	default:
		return fmt.Errorf("unsupported command %q", c.Verb)
	}

	handled, _ := s.renderer.Dispatch(render.Interaction{Kind: kind, Target: target})
	if !handled {
		return fmt.Errorf("%s on %q: no live binding", kind, c.Selector)
	}
	return nil
}

func (s *session) find(selector string) (*html.Node, error) {
	var (
		nodes []*html.Node
		err   error
	)
	s.doc.Read(func() { nodes, err = dom.QueryWithin(s.renderer.Container(), selector) })
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return nodes[0], nil
}

// activeSession holds the current session across config reloads
type activeSession struct {
	mu      sync.Mutex
	current *session
}

// Swap installs next and closes the previous session
func (a *activeSession) Swap(next *session) {
	a.mu.Lock()
	prev := a.current
	a.current = next
	a.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// Close stops the current session
func (a *activeSession) Close() {
	a.Swap(nil)
}

// Run implements ui.Session
func (a *activeSession) Run(c ui.Command) error {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if current == nil {
		return live.ErrNotConnected
	}
	return current.Run(c)
}
