package htmltext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanSnippet(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "paragraphs become sentences", input: "<p>Hello</p><p>World</p>", want: "Hello. World."},
		{name: "no double period", input: "<p>Done.</p><p>Next.</p>", want: "Done. Next."},
		{name: "plain text untouched", input: "just text", want: "just text"},
		{name: "inline tags joined", input: "he<b>ll</b>o <em>there</em>", want: "hello there"},
		{name: "block tags separate words", input: "<div>one</div><div>two</div>", want: "one two"},
		{name: "button removed with content", input: "<p>Click <button>Buy now</button> here</p>", want: "Click here."},
		{name: "script removed", input: "a<script>var x = 1;</script>b", want: "a b"},
		{name: "code kept verbatim", input: "<p>Use <code>a  ..  b</code> now</p>", want: "Use <code>a  ..  b</code> now."},
		{name: "nested code kept", input: "<pre><code>x<code>y</code>z</code></pre>", want: "<code>x<code>y</code>z</code>"},
		{name: "entities not decoded", input: "<p>Tom &amp; Jerry</p>", want: "Tom &amp; Jerry."},
		{name: "ellipsis collapsed", input: "wait... what", want: "wait. what"},
		{name: "line breaks", input: "a<br/>b<br>c", want: "a b c"},
		{name: "empty", input: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CleanSnippet(tt.input))
		})
	}
}
