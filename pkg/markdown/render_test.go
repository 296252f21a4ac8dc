package markdown

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"paragraph", "hello\n", "<p>hello</p>\n"},
		{"heading", "# Title\n", "<h1>Title</h1>\n"},
		{"emphasis", "*a* **b**\n", "<p><em>a</em> <strong>b</strong></p>\n"},
		{"link", "[x](http://example.com)\n", "<p><a href=\"http://example.com\">x</a></p>\n"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(Render([]byte(tt.src)))
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestRender_NoSmartypants(t *testing.T) {
	got := string(Render([]byte("\"quoted\" -- dash\n")))
	if strings.Contains(got, "&ldquo;") || strings.Contains(got, "&ndash;") {
		t.Errorf("unexpected typographic substitution: %q", got)
	}
}

func TestRender_FencedCode(t *testing.T) {
	got := string(Render([]byte("```\nx := 1\n```\n")))
	if !strings.Contains(got, "<pre><code>x := 1\n</code></pre>") {
		t.Errorf("fenced code not rendered: %q", got)
	}
}

func TestRender_RawHTMLPassesThrough(t *testing.T) {
	got := string(Render([]byte("<div>raw</div>\n")))
	if !strings.Contains(got, "<div>raw</div>") {
		t.Errorf("raw html dropped: %q", got)
	}
}

func TestRender_NilSource(t *testing.T) {
	if got := Render(nil); got == nil || len(got) != 0 {
		t.Errorf("Render(nil) = %v, want empty non-nil", got)
	}
}
