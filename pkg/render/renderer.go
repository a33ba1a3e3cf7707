// Package render turns static/dynamic patches into markup and merges it into
// a mounted container of a dom.Document.
package render

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/recera/liveclient/pkg/dom"
	"github.com/recera/liveclient/pkg/morph"
)

var (
	// ErrMissingTemplate is returned by Apply before any static template
	// has been received
	ErrMissingTemplate = errors.New("render: no static template received")
	// ErrMissingContainer is returned by New when the mount point is absent
	ErrMissingContainer = errors.New("render: container not found")
	// ErrNilPatch is returned by Apply for a nil patch
	ErrNilPatch = errors.New("render: nil patch")
)

// MergeOptions controls how markup is merged into the container
type MergeOptions = morph.Options

// Reconciler merges markup into a live subtree in place
type Reconciler interface {
	Merge(target *html.Node, markup string, opts MergeOptions) error
}

// Option configures a Renderer
type Option func(*Renderer)

// WithReconciler replaces the default morph reconciler
func WithReconciler(rc Reconciler) Option {
	return func(r *Renderer) { r.reconciler = rc }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.log = l
		}
	}
}

// Renderer applies patches to one container element. It remembers the last
// static template so later patches may carry only dynamic parts.
type Renderer struct {
	doc         *dom.Document
	container   *html.Node
	containerID string
	reconciler  Reconciler
	log         *zap.Logger

	mu        sync.Mutex
	static    []string
	hasStatic bool
	markup    string

	pushMu sync.RWMutex
	push   PushFunc
}

// New binds a renderer to the element with id containerID
func New(doc *dom.Document, containerID string, opts ...Option) (*Renderer, error) {
	var container *html.Node
	doc.Read(func() { container = doc.ElementByID(containerID) })
	if container == nil {
		return nil, fmt.Errorf("%w: #%s", ErrMissingContainer, containerID)
	}

	r := &Renderer{
		doc:         doc,
		container:   container,
		containerID: containerID,
		reconciler:  morph.Morph{},
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("renderer").With(zap.String("container", containerID))
	return r, nil
}

// Document returns the document the renderer writes into
func (r *Renderer) Document() *dom.Document {
	return r.doc
}

// Container returns the mount point
func (r *Renderer) Container() *html.Node {
	return r.container
}

// Apply renders p and merges the result into the container's children. A
// patch with a static template replaces the remembered one. The focused
// element is never updated by a merge.
func (r *Renderer) Apply(p *Patch) error {
	if p == nil {
		return ErrNilPatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p.HasStatic {
		r.static = append([]string(nil), p.Static...)
		r.hasStatic = true
	}
	if !r.hasStatic {
		return ErrMissingTemplate
	}

	markup := Build(r.static, p.Dynamic)

	var err error
	r.doc.Write(func() {
		err = r.reconciler.Merge(r.container, markup, MergeOptions{
			ChildrenOnly:      true,
			OnBeforeElUpdated: r.skipFocused,
		})
	})
	if err != nil {
		r.log.Error("merge failed", zap.Error(err))
		return fmt.Errorf("render: merge: %w", err)
	}

	r.markup = markup
	r.log.Debug("applied patch",
		zap.Int("dynamic", len(p.Dynamic)),
		zap.Bool("static", p.HasStatic),
		zap.Int("bytes", len(markup)))
	return nil
}

// skipFocused runs under the document write lock
func (r *Renderer) skipFocused(from, _ *html.Node) bool {
	return from != r.doc.ActiveElement()
}

// Markup returns the markup built by the last successful Apply
func (r *Renderer) Markup() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markup
}

// Static returns a copy of the remembered template, or nil
func (r *Renderer) Static() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasStatic {
		return nil
	}
	return append([]string{}, r.static...)
}
