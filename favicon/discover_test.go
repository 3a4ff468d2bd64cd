package favicon

import "testing"

func TestDiscoverIconURL(t *testing.T) {
	// WHAT: <link rel="icon"> hrefs are found and resolved against the page URL.
	// WHY: Relative hrefs ("/fav.png", "fav.png") are the common case.
	cases := []struct {
		name string
		page string
		html string
		want string
	}{
		{
			name: "absolute path",
			page: "https://example.test/docs/index.html",
			html: `<html><head><link rel="icon" href="/fav.png"></head></html>`,
			want: "https://example.test/fav.png",
		},
		{
			name: "relative path",
			page: "https://example.test/docs/index.html",
			html: `<html><head><link rel="icon" href="fav.png"></head></html>`,
			want: "https://example.test/docs/fav.png",
		},
		{
			name: "absolute URL",
			page: "https://example.test/",
			html: `<html><head><link rel="icon" href="https://cdn.example.test/fav.png"></head></html>`,
			want: "https://cdn.example.test/fav.png",
		},
		{
			name: "shortcut icon token list",
			page: "https://example.test/",
			html: `<html><head><link rel="shortcut icon" href="/fav.ico"></head></html>`,
			want: "https://example.test/fav.ico",
		},
		{
			name: "apple touch icon",
			page: "https://example.test/",
			html: `<html><head><link rel="apple-touch-icon" href="/touch.png"></head></html>`,
			want: "https://example.test/touch.png",
		},
		{
			name: "case-insensitive rel",
			page: "https://example.test/",
			html: `<html><head><LINK REL="Icon" HREF="/fav.png"></head></html>`,
			want: "https://example.test/fav.png",
		},
		{
			name: "stylesheet link ignored",
			page: "https://example.test/",
			html: `<html><head><link rel="stylesheet" href="/style.css"></head></html>`,
			want: "",
		},
		{
			name: "no links",
			page: "https://example.test/",
			html: `<html><body><p>plain page</p></body></html>`,
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := discoverIconURL(tc.page, []byte(tc.html))
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIconMIME(t *testing.T) {
	// WHAT: MIME detection prefers the declared header, then sniffs content,
	// and rejects non-images.
	// WHY: SVG can't be sniffed; HTML served as image/png must not pass.
	pngSig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	if got := iconMIME("image/svg+xml; charset=utf-8", []byte(`<svg xmlns="x"></svg>`)); got != "image/svg+xml" {
		t.Errorf("svg via header: got %q", got)
	}
	if got := iconMIME("application/octet-stream", pngSig); got != "image/png" {
		t.Errorf("png via sniff: got %q", got)
	}
	if got := iconMIME("", pngSig); got != "image/png" {
		t.Errorf("png no header: got %q", got)
	}
	if got := iconMIME("text/html", []byte("<!DOCTYPE html><html></html>")); got != "" {
		t.Errorf("html: expected rejection, got %q", got)
	}
}
