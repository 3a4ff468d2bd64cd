package favicon

import (
	"time"

	"github.com/hazyhaar/quai/urlguard"
)

// Config configures the favicon cache.
type Config struct {
	// TTL is how long a cached icon stays fresh. Stale entries are treated
	// as misses and overwritten by the next successful fetch. Default: 7 days.
	TTL time.Duration

	// MinIconBytes rejects tiny payloads that are almost always placeholder
	// or error images rather than real icons. Default: 100.
	MinIconBytes int

	// MaxIconBytes caps icon payload size. Default: 512 KiB.
	MaxIconBytes int64

	// SourceTimeout bounds each individual source fetch so one hung source
	// cannot stall the chain. Default: 5s.
	SourceTimeout time.Duration

	// UserAgent sent on outbound fetches.
	UserAgent string

	// URLValidator validates candidate URLs before fetch (SSRF prevention).
	// Default: urlguard.ValidateURL. Override in tests to allow loopback.
	URLValidator func(string) error

	// Sources is the ordered chain of icon URL builders.
	// Default: DefaultSources().
	Sources []Source

	// DisableDiscovery turns off the last-resort step that fetches the site
	// page and looks for <link rel="icon"> in its HTML.
	DisableDiscovery bool
}

func (c *Config) defaults() {
	if c.TTL <= 0 {
		c.TTL = 7 * 24 * time.Hour
	}
	if c.MinIconBytes <= 0 {
		c.MinIconBytes = 100
	}
	if c.MaxIconBytes <= 0 {
		c.MaxIconBytes = 512 * 1024
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 5 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "quai-favicon/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = urlguard.ValidateURL
	}
	if c.Sources == nil {
		c.Sources = DefaultSources()
	}
}
