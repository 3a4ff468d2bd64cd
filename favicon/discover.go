package favicon

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// discoverIconURL parses page HTML and returns the first <link rel="icon">
// href resolved against the page URL, or "" when the page declares no icon.
// rel is a space-separated token list, so "shortcut icon" and
// "apple-touch-icon" match too.
func discoverIconURL(pageURL string, pageHTML []byte) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	doc, err := html.Parse(bytes.NewReader(pageHTML))
	if err != nil {
		return ""
	}
	href := findIconLink(doc)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func findIconLink(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Link {
		var rel, href string
		for _, a := range n.Attr {
			switch a.Key {
			case "rel":
				rel = a.Val
			case "href":
				href = a.Val
			}
		}
		if href != "" && hasIconRel(rel) {
			return href
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findIconLink(c); href != "" {
			return href
		}
	}
	return ""
}

func hasIconRel(rel string) bool {
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if token == "icon" || token == "apple-touch-icon" {
			return true
		}
	}
	return false
}
