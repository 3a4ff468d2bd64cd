package panel

import (
	"context"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/go-rod/rod"
)

// snapshotTimeout bounds the title/HTML evaluation during capture so a
// wedged page cannot delay hibernation.
const snapshotTimeout = 5 * time.Second

// Snapshot is what survives hibernation: enough to render a wake preview.
type Snapshot struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Excerpt    string `json:"excerpt,omitempty"` // markdown, length-capped
	CapturedAt int64  `json:"captured_at"`       // UnixMilli
}

// LastSnapshot returns the snapshot captured on the most recent unload,
// or nil when the page is live or nothing was ever captured.
func (p *Panel) LastSnapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastSnapshot == nil {
		return nil
	}
	c := *p.lastSnapshot
	return &c
}

// capture reads the hosted page's title and HTML. Best effort: any failure
// logs and returns nil, and hibernation proceeds without a snapshot.
func (p *Panel) capture(ctx context.Context, page *rod.Page, url string) *Snapshot {
	capCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	titleRes, err := page.Context(capCtx).Eval(`() => document.title`)
	if err != nil {
		p.cfg.Logger.Warn("panel: snapshot title failed", "url", url, "error", err)
		return nil
	}
	htmlRes, err := page.Context(capCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		p.cfg.Logger.Warn("panel: snapshot html failed", "url", url, "error", err)
		return nil
	}

	return p.buildSnapshot(url, titleRes.Value.Str(), htmlRes.Value.Str())
}

// buildSnapshot sanitizes the title, converts the page HTML to markdown,
// and caps the excerpt. Pure apart from the capture timestamp.
func (p *Panel) buildSnapshot(url, title, html string) *Snapshot {
	snap := &Snapshot{
		URL:        url,
		Title:      strings.TrimSpace(p.sanitize.Sanitize(title)),
		CapturedAt: time.Now().UnixMilli(),
	}

	if html != "" {
		md, err := p.md.ConvertString(html, converter.WithDomain(url))
		if err != nil {
			p.cfg.Logger.Debug("panel: snapshot markdown failed", "url", url, "error", err)
		} else {
			snap.Excerpt = capRunes(strings.TrimSpace(md), p.cfg.SnapshotMaxLen)
		}
	}
	return snap
}

// capRunes cuts s at max runes, never mid-rune.
func capRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
