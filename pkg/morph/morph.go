// Package morph reconciles a live html.Node tree against new markup in
// place, moving and updating existing nodes instead of replacing them.
package morph

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNoRoot is returned when a whole-element merge gets markup without
	// exactly one root element
	ErrNoRoot = errors.New("morph: markup must have exactly one root element")
	// ErrDetached is returned when a whole-element merge must replace a
	// target that has no parent
	ErrDetached = errors.New("morph: target has no parent")
)

// Options controls a merge
type Options struct {
	// ChildrenOnly merges into the target's children and leaves the target
	// element itself untouched
	ChildrenOnly bool
	// OnBeforeElUpdated is called before an existing element is updated
	// from its new counterpart. Returning false leaves the element and its
	// subtree as they are.
	OnBeforeElUpdated func(from, to *html.Node) bool
}

// Morph is the default reconciler
type Morph struct{}

// Merge parses markup in the context of target and morphs target to match
func (Morph) Merge(target *html.Node, markup string, opts Options) error {
	if target == nil {
		return errors.New("morph: nil target")
	}

	nodes, err := html.ParseFragment(strings.NewReader(markup), fragmentContext(target))
	if err != nil {
		return fmt.Errorf("morph: parse: %w", err)
	}

	m := &merger{opts: opts}
	if opts.ChildrenOnly {
		m.children(target, nodes)
		return nil
	}

	var root *html.Node
	for _, n := range nodes {
		switch {
		case n.Type == html.ElementNode:
			if root != nil {
				return ErrNoRoot
			}
			root = n
		case n.Type == html.TextNode && strings.TrimSpace(n.Data) == "":
		default:
			return ErrNoRoot
		}
	}
	if root == nil {
		return ErrNoRoot
	}

	if compatible(target, root) {
		m.node(target, root)
		return nil
	}
	if target.Parent == nil {
		return ErrDetached
	}
	target.Parent.InsertBefore(root, target)
	target.Parent.RemoveChild(target)
	return nil
}

// Merge morphs target with the default reconciler
func Merge(target *html.Node, markup string, opts Options) error {
	return Morph{}.Merge(target, markup, opts)
}

type merger struct {
	opts Options
}

// node updates from in place to match to. The two must be compatible.
func (m *merger) node(from, to *html.Node) {
	switch from.Type {
	case html.TextNode, html.CommentNode:
		if from.Data != to.Data {
			from.Data = to.Data
		}
	case html.ElementNode:
		if m.opts.OnBeforeElUpdated != nil && !m.opts.OnBeforeElUpdated(from, to) {
			return
		}
		m.attrs(from, to)
		m.children(from, detachChildren(to))
	}
}

// attrs makes from carry exactly the attributes of to
func (m *merger) attrs(from, to *html.Node) {
	if attrsEqual(from.Attr, to.Attr) {
		return
	}
	from.Attr = append(from.Attr[:0:0], to.Attr...)
}

// children morphs the child list of parent to match next. Keyed children
// (by id) are found anywhere among the old children; the rest match by
// position when type and tag agree.
func (m *merger) children(parent *html.Node, next []*html.Node) {
	keyed := make(map[string]*html.Node)
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if id := key(c); id != "" {
			keyed[id] = c
		}
	}

	wanted := make(map[string]bool)
	for _, n := range next {
		if id := key(n); id != "" {
			wanted[id] = true
		}
	}

	used := make(map[*html.Node]bool, len(next))
	cursor := parent.FirstChild
	for _, n := range next {
		// keyed old nodes nobody asks for again are dropped as they surface
		for cursor != nil && key(cursor) != "" && !wanted[key(cursor)] {
			stale := cursor
			cursor = cursor.NextSibling
			parent.RemoveChild(stale)
		}

		var match *html.Node
		if id := key(n); id != "" {
			delete(wanted, id)
			if old, ok := keyed[id]; ok && !used[old] && compatible(old, n) {
				match = old
			}
		} else {
			match = nextUnkeyed(cursor, n)
		}

		if match == nil {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			parent.InsertBefore(n, cursor)
			continue
		}

		used[match] = true
		if match == cursor {
			cursor = cursor.NextSibling
		} else {
			parent.RemoveChild(match)
			parent.InsertBefore(match, cursor)
		}
		m.node(match, n)
	}

	for cursor != nil {
		next := cursor.NextSibling
		parent.RemoveChild(cursor)
		cursor = next
	}
}

// nextUnkeyed returns the first unkeyed sibling from cursor on that is
// compatible with n. Incompatible siblings it passes stay behind the cursor
// and are removed once the new children run out.
func nextUnkeyed(cursor, n *html.Node) *html.Node {
	for c := cursor; c != nil; c = c.NextSibling {
		if key(c) == "" && compatible(c, n) {
			return c
		}
	}
	return nil
}

func compatible(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == html.ElementNode {
		return a.Data == b.Data && a.Namespace == b.Namespace
	}
	return a.Type == html.TextNode || a.Type == html.CommentNode
}

func key(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "id" {
			return a.Val
		}
	}
	return ""
}

func attrsEqual(a, b []html.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func detachChildren(n *html.Node) []*html.Node {
	var kids []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		kids = append(kids, c)
		c = next
	}
	return kids
}

// fragmentContext returns an element to parse markup under. Non-element
// targets parse as body content.
func fragmentContext(target *html.Node) *html.Node {
	if target.Type == html.ElementNode {
		a := target.DataAtom
		if a == 0 {
			a = atom.Lookup([]byte(target.Data))
		}
		return &html.Node{Type: html.ElementNode, Data: target.Data, DataAtom: a, Namespace: target.Namespace}
	}
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}
