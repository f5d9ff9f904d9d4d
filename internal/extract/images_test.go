package extract

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestImagesFromHTML(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<img src="https://cdn.example.com/tiger1.jpg">
		<img src="//cdn.example.com/tiger2.PNG">
		<img src="/media/tiger3.webp">
		<img data-src="https://cdn.example.com/lazy.jpeg">
		<img src="/scripts/app.js">
		<img src="https://cdn.example.com/TIGER1.JPG">
	</body></html>`

	got := New(0).Images("", html, "https://zoo.example.com/about")
	want := []string{
		"https://cdn.example.com/tiger1.jpg",
		"https://cdn.example.com/tiger2.PNG",
		"https://zoo.example.com/media/tiger3.webp",
		"https://cdn.example.com/lazy.jpeg",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Images() = %v, want %v", got, want)
	}
}

func TestImagesFromTextContent(t *testing.T) {
	t.Parallel()

	content := `New arrivals! https://img.example.com/cub.jpg and also
		https://example.com/article-about-tigers plus https://img.example.com/cub.jpg.`

	got := New(0).Images(content, "", "https://example.com")
	want := []string{"https://img.example.com/cub.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Images() = %v, want %v", got, want)
	}
}

func TestImagesDedupCaseInsensitive(t *testing.T) {
	t.Parallel()

	html := `<img src="https://a.example.com/One.JPG"><img src="https://a.example.com/one.jpg">`
	got := New(0).Images("", html, "")
	if len(got) != 1 {
		t.Fatalf("expected 1 deduplicated URL, got %v", got)
	}
	if got[0] != "https://a.example.com/One.JPG" {
		t.Fatalf("expected first occurrence preserved, got %q", got[0])
	}
}

func TestImagesCap(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&sb, `<img src="https://cdn.example.com/img%d.jpg">`, i)
	}
	got := New(0).Images("", sb.String(), "")
	if len(got) != DefaultMaxImages {
		t.Fatalf("expected cap of %d, got %d", DefaultMaxImages, len(got))
	}
}

func TestImagesIdempotent(t *testing.T) {
	t.Parallel()

	html := `<img src="/a.jpg"><img src="/b.png">`
	ex := New(0)
	first := ex.Images("", html, "https://example.com")
	second := ex.Images("", html, "https://example.com")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected idempotent extraction, got %v then %v", first, second)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		base string
		want string
	}{
		{"absolute", "https://x.com/a.jpg", "https://base.com", "https://x.com/a.jpg"},
		{"protocol relative", "//x.com/a.jpg", "https://base.com", "https://x.com/a.jpg"},
		{"root relative", "/a.jpg", "https://base.com/page", "https://base.com/a.jpg"},
		{"root relative bad base", "/a.jpg", "::bad::", "/a.jpg"},
		{"bare relative", "img/a.jpg", "https://base.com", "img/a.jpg"},
		{"empty", "  ", "https://base.com", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Resolve(tc.raw, tc.base); got != tc.want {
				t.Fatalf("Resolve(%q, %q) = %q, want %q", tc.raw, tc.base, got, tc.want)
			}
		})
	}
}

func TestHasImageExtension(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://x.com/a.jpg":        true,
		"https://x.com/a.JPEG?w=600": true,
		"https://x.com/a.webp#frag":  true,
		"https://x.com/a":            false,
		"https://x.com/a.html":       false,
		"https://x.com/a.jpg.html":   false,
	}
	for input, want := range cases {
		if got := HasImageExtension(input); got != want {
			t.Errorf("HasImageExtension(%q) = %v, want %v", input, got, want)
		}
	}
}
