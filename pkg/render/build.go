package render

import (
	"html"
	"strconv"
	"strings"
)

// Build interleaves static with the rendered dynamic parts. The render of
// dynamic[i] lands after static[i]; parts past len(static) are ignored.
func Build(static []string, dynamic []Dynamic) string {
	var b strings.Builder
	build(&b, static, dynamic)
	return b.String()
}

func build(b *strings.Builder, static []string, dynamic []Dynamic) {
	for i, s := range static {
		b.WriteString(s)
		if i < len(dynamic) {
			renderDynamic(b, dynamic[i])
		}
	}
}

// RenderDynamic renders one dynamic part. Text is escaped; unknown shapes
// render as nothing.
func RenderDynamic(d Dynamic) string {
	var b strings.Builder
	renderDynamic(&b, d)
	return b.String()
}

func renderDynamic(b *strings.Builder, d Dynamic) {
	switch v := d.(type) {
	case nil, Null:
	case Text:
		b.WriteString(html.EscapeString(string(v)))
	case Number:
		b.WriteString(string(v))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(v)))
	case List:
		for _, item := range v {
			renderDynamic(b, item)
		}
	case Nested:
		if v.Patch != nil {
			build(b, v.Patch.Static, v.Patch.Dynamic)
		}
	case Unknown:
	}
}
