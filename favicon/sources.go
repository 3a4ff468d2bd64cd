package favicon

import "fmt"

// Source is one entry in the icon fetch chain: a name for logs and a
// builder that turns a hostname into a candidate icon URL.
type Source struct {
	Name string
	URL  func(host string) string
}

// DefaultSources returns the standard chain: dedicated icon services first
// (they normalize sizes and follow site moves), then the site's own
// conventional paths. HTML discovery runs after these, see Resolve.
func DefaultSources() []Source {
	return []Source{
		{
			Name: "google",
			URL: func(host string) string {
				return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=64", host)
			},
		},
		{
			Name: "duckduckgo",
			URL: func(host string) string {
				return fmt.Sprintf("https://icons.duckduckgo.com/ip3/%s.ico", host)
			},
		},
		{
			Name: "favicon.ico",
			URL: func(host string) string {
				return fmt.Sprintf("https://%s/favicon.ico", host)
			},
		},
		{
			Name: "apple-touch-icon",
			URL: func(host string) string {
				return fmt.Sprintf("https://%s/apple-touch-icon.png", host)
			},
		},
	}
}
