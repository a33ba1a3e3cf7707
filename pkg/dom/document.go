// Package dom holds the in-memory document a live view renders into.
//
// A Document wraps an x/net/html tree with the pieces a browser would
// otherwise supply: element lookup, selector queries, input focus and form
// control values. Methods do not lock; callers sharing a Document with a
// renderer wrap access in Read or Write.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrEmptySelector is returned by Query for a blank selector
var ErrEmptySelector = errors.New("dom: empty selector")

const blankPage = "<!DOCTYPE html><html><head></head><body></body></html>"

// Document is a parsed HTML document with focus tracking
type Document struct {
	mu     sync.RWMutex
	root   *html.Node
	active *html.Node
	text   *bluemonday.Policy
}

// New returns an empty document with a head and body
func New() *Document {
	doc, err := ParseString(blankPage)
	if err != nil {
		panic(fmt.Sprintf("dom: blank page: %v", err))
	}
	return doc
}

// Parse reads an HTML document
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{root: root, text: bluemonday.StrictPolicy()}, nil
}

// ParseString parses an HTML document from a string
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Read runs fn while holding the read lock
func (d *Document) Read(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn()
}

// Write runs fn while holding the write lock
func (d *Document) Write(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns the body element, or nil
func (d *Document) Body() *html.Node {
	return findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
}

// ElementByID returns the element whose id attribute equals id
func (d *Document) ElementByID(id string) *html.Node {
	if id == "" {
		return nil
	}
	return findFirst(d.root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		v, ok := Attr(n, "id")
		return ok && v == id
	})
}

// Query returns every element matching selector in document order.
// Selectors starting with "/" are XPath expressions; anything else is CSS.
func (d *Document) Query(selector string) ([]*html.Node, error) {
	return QueryWithin(d.root, selector)
}

// QueryFirst returns the first match for selector, or nil
func (d *Document) QueryFirst(selector string) (*html.Node, error) {
	nodes, err := d.Query(selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// QueryWithin runs selector against the subtree rooted at top
func QueryWithin(top *html.Node, selector string) ([]*html.Node, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, ErrEmptySelector
	}

	if strings.HasPrefix(selector, "/") {
		nodes, err := htmlquery.QueryAll(top, selector)
		if err != nil {
			return nil, fmt.Errorf("dom: xpath %q: %w", selector, err)
		}
		return nodes, nil
	}

	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("dom: selector %q: %w", selector, err)
	}
	return goquery.NewDocumentFromNode(top).FindMatcher(matcher).Nodes, nil
}

// Closest returns the nearest ancestor of n (n included) matching the CSS
// selector, stopping at boundary. A nil boundary searches to the root.
func Closest(n *html.Node, selector string, boundary *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	found := goquery.NewDocumentFromNode(n).Closest(selector)
	for _, match := range found.Nodes {
		if boundary == nil || Contains(boundary, match) {
			return match
		}
	}
	return nil
}

// Contains reports whether n is ancestor or equal to other
func Contains(n, other *html.Node) bool {
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Focus makes n the active element
func (d *Document) Focus(n *html.Node) {
	d.active = n
}

// Blur clears the active element
func (d *Document) Blur() {
	d.active = nil
}

// ActiveElement returns the focused element. An element removed from the
// tree loses focus.
func (d *Document) ActiveElement() *html.Node {
	if d.active == nil {
		return nil
	}
	if !Contains(d.root, d.active) {
		d.active = nil
	}
	return d.active
}

// InnerHTML renders the children of n
func (d *Document) InnerHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("dom: render: %w", err)
		}
	}
	return buf.String(), nil
}

// OuterHTML renders n itself
func (d *Document) OuterHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("dom: render: %w", err)
	}
	return buf.String(), nil
}

// Text returns the readable text of n with markup stripped and runs of
// whitespace collapsed
func (d *Document) Text(n *html.Node) string {
	markup, err := d.OuterHTML(n)
	if err != nil {
		return ""
	}
	plain := html.UnescapeString(d.text.Sanitize(markup))
	return strings.Join(strings.Fields(plain), " ")
}

// String renders the whole document
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return ""
	}
	return buf.String()
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}
