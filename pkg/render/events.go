package render

import (
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/recera/liveclient/pkg/dom"
)

// Marker attributes that opt an element into interaction capture
const (
	AttrClick  = "phx-click"
	AttrValue  = "phx-value"
	AttrChange = "phx-change"
	AttrSubmit = "phx-submit"
)

// PushFunc sends an application event to the server
type PushFunc func(event string, value any)

// InteractionKind is the category of a user interaction
type InteractionKind int

const (
	// Click is an activation such as a button press
	Click InteractionKind = iota
	// Input is a change to a control's value
	Input
	// Submit is a form submission; Target is the form
	Submit
)

func (k InteractionKind) String() string {
	switch k {
	case Click:
		return "click"
	case Input:
		return "input"
	case Submit:
		return "submit"
	default:
		return "unknown"
	}
}

// Interaction is one user interaction against an element of the document
type Interaction struct {
	Kind   InteractionKind
	Target *html.Node
}

// BindEvents routes captured interactions to push. Binding again replaces
// the previous target; a nil push unbinds.
func (r *Renderer) BindEvents(push PushFunc) {
	r.pushMu.Lock()
	r.push = push
	r.pushMu.Unlock()
}

// Dispatch delivers an interaction the way a browser would bubble it to the
// container. handled reports whether an outbound event was pushed;
// preventDefault reports whether the interaction's default action is
// suppressed.
func (r *Renderer) Dispatch(in Interaction) (handled, preventDefault bool) {
	r.pushMu.RLock()
	push := r.push
	r.pushMu.RUnlock()
	if push == nil || in.Target == nil {
		return false, false
	}

	var (
		event string
		value any
	)
	r.doc.Read(func() {
		if !dom.Contains(r.container, in.Target) {
			return
		}
		switch in.Kind {
		case Click:
			el := dom.Closest(in.Target, "["+AttrClick+"]", r.container)
			if el == nil {
				return
			}
			event, _ = dom.Attr(el, AttrClick)
			if v, ok := dom.Attr(el, AttrValue); ok && v != "" {
				value = map[string]any{"value": v}
			} else {
				value = map[string]any{"value": map[string]any{}}
			}
			preventDefault = true
		case Input:
			el := dom.Closest(in.Target, "["+AttrChange+"]", r.container)
			if el == nil {
				return
			}
			event, _ = dom.Attr(el, AttrChange)
			value = map[string]any{"value": r.doc.Value(in.Target)}
		case Submit:
			el := dom.Closest(in.Target, "["+AttrSubmit+"]", r.container)
			if el == nil {
				return
			}
			event, _ = dom.Attr(el, AttrSubmit)
			form := in.Target
			if form.Data != "form" {
				form = dom.Closest(in.Target, "form", nil)
			}
			if form == nil {
				return
			}
			value = r.doc.SerializeForm(form)
			preventDefault = true
		}
	})
	if value == nil {
		return false, false
	}

	r.log.Debug("push", zap.Stringer("kind", in.Kind), zap.String("event", event))
	push(event, value)
	return true, preventDefault
}
