package render

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Patch is a static template interleaved with dynamic parts. A full render
// has len(Static) == len(Dynamic)+1. Static may be omitted in updates, in
// which case the renderer reuses the last template it saw.
type Patch struct {
	Static    []string
	HasStatic bool
	Dynamic   []Dynamic
}

// Dynamic is one dynamic slot. The concrete types are Null, Text, Number,
// Bool, List, Nested and Unknown.
type Dynamic interface {
	isDynamic()
}

// Null renders as nothing
type Null struct{}

// Text renders escaped
type Text string

// Number renders its literal JSON text
type Number json.Number

// Bool renders as true or false
type Bool bool

// List renders each element in order with no separator
type List []Dynamic

// Nested renders through the same static/dynamic interleave
type Nested struct {
	Patch *Patch
}

// Unknown is any shape the renderer does not recognize. It renders as
// nothing.
type Unknown struct {
	Raw json.RawMessage
}

func (Null) isDynamic()    {}
func (Text) isDynamic()    {}
func (Number) isDynamic()  {}
func (Bool) isDynamic()    {}
func (List) isDynamic()    {}
func (Nested) isDynamic()  {}
func (Unknown) isDynamic() {}

// UnmarshalJSON decodes the wire shape into tagged dynamic parts
func (p *Patch) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("patch: %w", err)
	}

	*p = Patch{}
	if raw, ok := fields["s"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &p.Static); err != nil {
			return fmt.Errorf("patch static: %w", err)
		}
		p.HasStatic = true
	}

	if raw, ok := fields["d"]; ok && !isNull(raw) {
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return fmt.Errorf("patch dynamic: %w", err)
		}
		p.Dynamic = make([]Dynamic, len(parts))
		for i, part := range parts {
			p.Dynamic[i] = decodeDynamic(part)
		}
	}
	return nil
}

// MarshalJSON encodes the patch in wire shape
func (p Patch) MarshalJSON() ([]byte, error) {
	out := struct {
		Static  []string `json:"s,omitempty"`
		Dynamic []any    `json:"d"`
	}{
		Dynamic: make([]any, len(p.Dynamic)),
	}
	if p.HasStatic {
		out.Static = p.Static
		if out.Static == nil {
			out.Static = []string{}
		}
	}
	for i, d := range p.Dynamic {
		out.Dynamic[i] = encodeDynamic(d)
	}
	return json.Marshal(out)
}

// ParsePatch decodes a patch from JSON
func ParsePatch(data []byte) (*Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeDynamic(raw json.RawMessage) Dynamic {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return Null{}
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Unknown{Raw: raw}
		}
		return Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Unknown{Raw: raw}
		}
		return Bool(b)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Unknown{Raw: raw}
		}
		list := make(List, len(items))
		for i, item := range items {
			list[i] = decodeDynamic(item)
		}
		return list
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return Unknown{Raw: raw}
		}
		_, hasStatic := fields["s"]
		_, hasDynamic := fields["d"]
		if !hasStatic || !hasDynamic {
			return Unknown{Raw: raw}
		}
		var nested Patch
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return Unknown{Raw: raw}
		}
		return Nested{Patch: &nested}
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return Unknown{Raw: raw}
		}
		return Number(n)
	}
}

func encodeDynamic(d Dynamic) any {
	switch v := d.(type) {
	case Text:
		return string(v)
	case Number:
		return json.Number(v)
	case Bool:
		return bool(v)
	case List:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = encodeDynamic(item)
		}
		return items
	case Nested:
		if v.Patch == nil {
			return nil
		}
		return v.Patch
	case Unknown:
		if len(v.Raw) == 0 {
			return nil
		}
		return v.Raw
	default:
		return nil
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
