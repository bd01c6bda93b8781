package export

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/diagrammer/svgdom"
)

func TestPrepareForExportIsIdempotentOnLive(t *testing.T) {
	live := mustParse(t, liveSVG)
	vp := live.FindByClass(ViewportClass)
	attrsBefore := append(vp.Attr[:0:0], vp.Attr...)
	before, _ := live.String()

	sheets := []StyleSheet{{CSS: "rect { stroke: black; }"}}
	first := PrepareForExport(live, sheets, slog.Default())
	second := PrepareForExport(live, sheets, slog.Default())

	after, _ := live.String()
	if before != after {
		t.Fatalf("live diagram changed:\n%s\n%s", before, after)
	}
	if diff := cmp.Diff(attrsBefore, vp.Attr); diff != "" {
		t.Fatalf("viewport attributes changed (-before +after):\n%s", diff)
	}
	a, _ := first.String()
	b, _ := second.String()
	if a != b {
		t.Fatalf("two preparations differ:\n%s\n%s", a, b)
	}
}

func TestPrepareForExportStripsViewport(t *testing.T) {
	prepared := PrepareForExport(mustParse(t, liveSVG), nil, nil)
	vp := prepared.FindByClass(ViewportClass)
	if vp == nil {
		t.Fatal("viewport missing from copy")
	}
	if _, ok := svgdom.Attr(vp, "transform"); ok {
		t.Error("transform survived")
	}
	if _, ok := svgdom.Attr(vp, "style"); ok {
		t.Error("inline style survived")
	}
}

func TestPrepareForExportInlinesStyles(t *testing.T) {
	sheets := []StyleSheet{
		{CSS: ".node rect { fill: #eee; }\n.edge { stroke: #333; }"},
		{Href: "https://cdn.example.com/theme.css", CSS: ".cdn { color: red; }"},
		{CSS: ".bg { background: url(https://example.com/a.png); }\n.ok { background: url(data:image/png;base64,AAAA); }"},
	}
	prepared := PrepareForExport(mustParse(t, liveSVG), sheets, nil)

	first := prepared.Root().FirstChild
	if first == nil || first.Data != "style" {
		t.Fatalf("first child = %+v, want <style>", first)
	}
	css := svgdom.TextContent(first)
	for _, want := range []string{".node rect", ".edge", ".ok"} {
		if !strings.Contains(css, want) {
			t.Errorf("inlined css missing %q:\n%s", want, css)
		}
	}
	for _, unwanted := range []string{".cdn", ".bg", "example.com"} {
		if strings.Contains(css, unwanted) {
			t.Errorf("inlined css contains %q:\n%s", unwanted, css)
		}
	}
	if n := strings.Count(css, "\n"); n != 2 {
		t.Errorf("want one rule per line (3 rules), got %d newlines:\n%s", n, css)
	}
}

func TestReferencesExternalURL(t *testing.T) {
	tests := []struct {
		css  string
		want bool
	}{
		{".a { color: red; }", false},
		{".a { background: url(https://x/y.png); }", true},
		{".a { background: URL ( 'http://x' ); }", true},
		{".a { background: url('data:image/png;base64,AA'); }", false},
		{`.a { fill: url("#grad"); }`, false},
		{".a { fill: url(#grad); mask: url(m.svg); }", true},
		{".a { background: url( data:x); }", true},
		{".curl { color: blue; }", false},
	}
	for _, tt := range tests {
		if got := referencesExternalURL(tt.css); got != tt.want {
			t.Errorf("referencesExternalURL(%q) = %v, want %v", tt.css, got, tt.want)
		}
	}
}

func TestResolveBoundingBoxRules(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		rule   string
		want   BoundingBox
	}{
		{
			"viewport wins over viewBox",
			`<svg viewBox="0 0 999 999"><g class="svg-pan-zoom_viewport" transform="scale(4)"><rect x="5" y="6" width="10" height="20"/></g></svg>`,
			"viewport", BoundingBox{5, 6, 10, 20},
		},
		{
			"declared viewBox",
			`<svg viewBox="-10 -10 200 100"><rect width="5" height="5"/></svg>`,
			"viewBox", BoundingBox{-10, -10, 200, 100},
		},
		{
			"zero-width viewBox falls through",
			`<svg viewBox="0 0 0 100"><rect x="1" y="2" width="3" height="4"/></svg>`,
			"element", BoundingBox{1, 2, 3, 4},
		},
		{
			"no viewBox",
			`<svg><circle cx="50" cy="50" r="10"/></svg>`,
			"element", BoundingBox{40, 40, 20, 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule, err := ResolveBoundingBoxRule(mustParse(t, tt.markup))
			if err != nil {
				t.Fatal(err)
			}
			if rule != tt.rule {
				t.Errorf("rule = %q, want %q", rule, tt.rule)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("box (-want +got):\n%s", diff)
			}
		})
	}
}
