package morph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// container parses markup into a detached <div id="root"> and returns it
func container(t *testing.T, inner string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(`<div id="root">` + inner + `</div>`))
	require.NoError(t, err)
	var root *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && root == nil {
			root = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	require.NotNil(t, root)
	return root
}

func inner(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		require.NoError(t, html.Render(&buf, c))
	}
	return buf.String()
}

func byID(n *html.Node, id string) *html.Node {
	if key(n) == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := byID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func TestMerge_ChildrenOnly(t *testing.T) {
	tests := []struct {
		name   string
		before string
		markup string
	}{
		{"text update", `<p>old</p>`, `<p>new</p>`},
		{"attribute set", `<p>x</p>`, `<p class="a">x</p>`},
		{"attribute remove", `<p class="a" title="t">x</p>`, `<p class="a">x</p>`},
		{"insert", `<p>a</p>`, `<p>a</p><p>b</p><span>c</span>`},
		{"remove", `<p>a</p><p>b</p><span>c</span>`, `<p>a</p>`},
		{"tag change", `<p>a</p>`, `<h2>a</h2>`},
		{"comment", `<!-- one --><p>a</p>`, `<!-- two --><p>a</p>`},
		{"nested", `<ul><li>a</li></ul>`, `<ul><li>a</li><li>b</li></ul>`},
		{"empty", `<p>a</p>`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := container(t, tt.before)
			require.NoError(t, Merge(root, tt.markup, Options{ChildrenOnly: true}))
			assert.Equal(t, tt.markup, inner(t, root))
			assert.Equal(t, "div", root.Data)
		})
	}
}

func TestMerge_ReusesMatchedNodes(t *testing.T) {
	root := container(t, `<p>a</p><span>b</span>`)
	p := root.FirstChild
	span := p.NextSibling

	require.NoError(t, Merge(root, `<p class="x">a2</p><span>b2</span>`, Options{ChildrenOnly: true}))

	assert.Same(t, p, root.FirstChild)
	assert.Same(t, span, root.FirstChild.NextSibling)
	assert.Equal(t, "a2", p.FirstChild.Data)
}

func TestMerge_KeyedReorder(t *testing.T) {
	root := container(t, `<li id="a">A</li><li id="b">B</li><li id="c">C</li>`)
	a, b, c := byID(root, "a"), byID(root, "b"), byID(root, "c")

	require.NoError(t, Merge(root, `<li id="c">C</li><li id="a">A!</li><li id="b">B</li>`, Options{ChildrenOnly: true}))

	assert.Equal(t, `<li id="c">C</li><li id="a">A!</li><li id="b">B</li>`, inner(t, root))
	assert.Same(t, c, root.FirstChild)
	assert.Same(t, a, c.NextSibling)
	assert.Same(t, b, a.NextSibling)
}

func TestMerge_KeyedRemovalKeepsPositionalMatches(t *testing.T) {
	root := container(t, `<div id="gone">x</div><p>one</p><p>two</p>`)
	first := root.FirstChild.NextSibling

	require.NoError(t, Merge(root, `<p>one</p><p>2</p>`, Options{ChildrenOnly: true}))

	assert.Equal(t, `<p>one</p><p>2</p>`, inner(t, root))
	assert.Same(t, first, root.FirstChild)
}

func TestMerge_VetoPreservesFocusedElement(t *testing.T) {
	root := container(t, `<label>Name</label><input id="name" value="typed by user"><span>0</span>`)
	focused := byID(root, "name")

	opts := Options{
		ChildrenOnly: true,
		OnBeforeElUpdated: func(from, _ *html.Node) bool {
			return from != focused
		},
	}
	require.NoError(t, Merge(root, `<label>Full name</label><input id="name" value="server"><span>1</span>`, opts))

	assert.Equal(t, `<label>Full name</label><input id="name" value="typed by user"/><span>1</span>`, inner(t, root))
	assert.Same(t, focused, byID(root, "name"))
}

func TestMerge_VetoSkipsSubtree(t *testing.T) {
	root := container(t, `<section class="old"><p>keep</p></section>`)
	section := root.FirstChild

	opts := Options{
		ChildrenOnly: true,
		OnBeforeElUpdated: func(from, _ *html.Node) bool {
			return from.Data != "section"
		},
	}
	require.NoError(t, Merge(root, `<section class="new"><p>changed</p></section>`, opts))

	assert.Same(t, section, root.FirstChild)
	assert.Equal(t, `<section class="old"><p>keep</p></section>`, inner(t, root))
}

func TestMerge_WholeElement(t *testing.T) {
	root := container(t, `<p>a</p>`)

	require.NoError(t, Merge(root, `<div id="root" class="x"><p>b</p></div>`, Options{}))
	assert.Equal(t, `<p>b</p>`, inner(t, root))
	v := ""
	for _, a := range root.Attr {
		if a.Key == "class" {
			v = a.Val
		}
	}
	assert.Equal(t, "x", v)
}

func TestMerge_WholeElementReplace(t *testing.T) {
	root := container(t, `<p>a</p>`)
	parent := root.Parent

	require.NoError(t, Merge(root, `<section>b</section>`, Options{}))
	assert.Nil(t, root.Parent)
	assert.Equal(t, "section", parent.FirstChild.Data)
}

func TestMerge_WholeElementErrors(t *testing.T) {
	root := container(t, `<p>a</p>`)

	assert.ErrorIs(t, Merge(root, `<p>a</p><p>b</p>`, Options{}), ErrNoRoot)
	assert.ErrorIs(t, Merge(root, `just text`, Options{}), ErrNoRoot)
	assert.ErrorIs(t, Merge(root, ``, Options{}), ErrNoRoot)

	detached := &html.Node{Type: html.ElementNode, Data: "div"}
	assert.ErrorIs(t, Merge(detached, `<span></span>`, Options{}), ErrDetached)
}

func TestMerge_SkipsIncompatibleSiblingsToFindMatch(t *testing.T) {
	root := container(t, `<p>too short</p><input name="q" value="typed"><span>0</span>`)
	input := root.FirstChild.NextSibling
	span := input.NextSibling

	opts := Options{
		ChildrenOnly: true,
		OnBeforeElUpdated: func(from, _ *html.Node) bool {
			return from != input
		},
	}
	require.NoError(t, Merge(root, `<input name="q" value=""><span>1</span>`, opts))

	assert.Equal(t, `<input name="q" value="typed"/><span>1</span>`, inner(t, root))
	assert.Same(t, input, root.FirstChild)
	assert.Same(t, span, input.NextSibling)
}

func TestMerge_TargetWithoutAtom(t *testing.T) {
	built := &html.Node{Type: html.ElementNode, Data: "div"}

	require.NoError(t, Merge(built, `<p>a</p>`, Options{ChildrenOnly: true}))
	assert.Equal(t, `<p>a</p>`, inner(t, built))

	custom := &html.Node{Type: html.ElementNode, Data: "live-view"}
	require.NoError(t, Merge(custom, `<p>b</p>`, Options{ChildrenOnly: true}))
	assert.Equal(t, `<p>b</p>`, inner(t, custom))
}
