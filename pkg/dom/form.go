package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attr returns the value of the named attribute
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the named attribute
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes the named attribute if present
func RemoveAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// HasAttr reports whether the named attribute is present
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// Value returns the current value of a form control. Elements that are not
// controls yield the empty string.
func (d *Document) Value(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	switch n.DataAtom {
	case atom.Input:
		v, ok := Attr(n, "value")
		if !ok && isCheckable(n) {
			return "on"
		}
		return v
	case atom.Textarea:
		return textContent(n)
	case atom.Select:
		if opt := selectedOption(n); opt != nil {
			return optionValue(opt)
		}
		return ""
	case atom.Option:
		return optionValue(n)
	}
	return ""
}

// SetValue updates a form control. For checkboxes and radios a non-empty
// value checks the control.
func (d *Document) SetValue(n *html.Node, v string) {
	if n == nil || n.Type != html.ElementNode {
		return
	}
	switch n.DataAtom {
	case atom.Input:
		if isCheckable(n) {
			if v == "" {
				RemoveAttr(n, "checked")
			} else {
				SetAttr(n, "checked", "")
			}
			return
		}
		SetAttr(n, "value", v)
	case atom.Textarea:
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: v})
	case atom.Select:
		for _, opt := range options(n) {
			if optionValue(opt) == v {
				SetAttr(opt, "selected", "")
			} else {
				RemoveAttr(opt, "selected")
			}
		}
	}
}

// SerializeForm collects the successful controls of form as name to value.
// Disabled controls, unchecked checkboxes and radios, buttons and file
// inputs are skipped. A later control with the same name wins.
func (d *Document) SerializeForm(form *html.Node) map[string]string {
	fields := make(map[string]string)
	if form == nil {
		return fields
	}

	goquery.NewDocumentFromNode(form).Find("input[name], select[name], textarea[name]").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		name := s.AttrOr("name", "")
		if name == "" || HasAttr(n, "disabled") {
			return
		}
		if n.DataAtom == atom.Input {
			switch inputType(n) {
			case "submit", "button", "reset", "image", "file":
				return
			case "checkbox", "radio":
				if !HasAttr(n, "checked") {
					return
				}
			}
		}
		if n.DataAtom == atom.Select && selectedOption(n) == nil {
			return
		}
		fields[name] = d.Value(n)
	})
	return fields
}

func inputType(n *html.Node) string {
	t, _ := Attr(n, "type")
	return strings.ToLower(strings.TrimSpace(t))
}

func isCheckable(n *html.Node) bool {
	t := inputType(n)
	return t == "checkbox" || t == "radio"
}

func options(sel *html.Node) []*html.Node {
	return goquery.NewDocumentFromNode(sel).Find("option").Nodes
}

func selectedOption(sel *html.Node) *html.Node {
	opts := options(sel)
	for _, opt := range opts {
		if HasAttr(opt, "selected") {
			return opt
		}
	}
	if len(opts) > 0 {
		return opts[0]
	}
	return nil
}

func optionValue(opt *html.Node) string {
	if v, ok := Attr(opt, "value"); ok {
		return v
	}
	return strings.TrimSpace(textContent(opt))
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
