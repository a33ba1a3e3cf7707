package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		static  []string
		dynamic []Dynamic
		want    string
	}{
		{
			name:    "escapes text",
			static:  []string{"<b>", "</b>"},
			dynamic: []Dynamic{Text("x<y")},
			want:    "<b>x&lt;y</b>",
		},
		{
			name:    "escapes quotes and ampersands",
			static:  []string{`<a title="`, `">`, `</a>`},
			dynamic: []Dynamic{Text(`"q" & 'a'`), Text("<script>")},
			want:    `<a title="&#34;q&#34; &amp; &#39;a&#39;">&lt;script&gt;</a>`,
		},
		{
			name:   "nested list",
			static: []string{"<ul>", "</ul>"},
			dynamic: []Dynamic{List{
				Nested{Patch: &Patch{Static: []string{"<li>", "</li>"}, Dynamic: []Dynamic{Text("a")}}},
				Nested{Patch: &Patch{Static: []string{"<li>", "</li>"}, Dynamic: []Dynamic{Text("b")}}},
			}},
			want: "<ul><li>a</li><li>b</li></ul>",
		},
		{
			name:    "literals",
			static:  []string{"", "|", "|", "|", ""},
			dynamic: []Dynamic{Number("1.50"), Number("-2e3"), Bool(true), Bool(false)},
			want:    "1.50|-2e3|true|false",
		},
		{
			name:    "null and unknown render empty",
			static:  []string{"[", "][", "][", "]"},
			dynamic: []Dynamic{Null{}, Unknown{Raw: []byte(`{"x":1}`)}, nil},
			want:    "[][][]",
		},
		{
			name:    "missing dynamic parts",
			static:  []string{"a", "b", "c"},
			dynamic: []Dynamic{Text("1")},
			want:    "a1bc",
		},
		{
			name:    "surplus dynamic parts",
			static:  []string{"a"},
			dynamic: []Dynamic{Text("1"), Text("2")},
			want:    "a1",
		},
		{
			name:   "deep nesting",
			static: []string{"<div>", "</div>"},
			dynamic: []Dynamic{Nested{Patch: &Patch{
				Static: []string{"<p>", "</p>"},
				Dynamic: []Dynamic{Nested{Patch: &Patch{
					Static:  []string{"<em>", "</em>"},
					Dynamic: []Dynamic{Text("&")},
				}}},
			}}},
			want: "<div><p><em>&amp;</em></p></div>",
		},
		{
			name:   "empty template",
			static: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Build(tt.static, tt.dynamic))
		})
	}
}

func TestBuild_FromWire(t *testing.T) {
	p, err := ParsePatch([]byte(`{"s":["<ul>","</ul>"],"d":[[{"s":["<li>","</li>"],"d":["a"]},{"s":["<li>","</li>"],"d":["b"]}]]}`))
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>a</li><li>b</li></ul>", Build(p.Static, p.Dynamic))
}

func TestRenderDynamic(t *testing.T) {
	assert.Equal(t, "", RenderDynamic(nil))
	assert.Equal(t, "a&lt;b1", RenderDynamic(List{Text("a<b"), List{Number("1")}}))
}
