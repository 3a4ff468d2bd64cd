package panel

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/quai/urlguard"
)

// The Panel is the idle controller's View: LoadedURL/Load/Unload drive the
// hosted page. Locks stay short so navigation (up to NavTimeout) never
// blocks state reads.

// LoadedURL returns the currently loaded address, "" when none.
func (p *Panel) LoadedURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedURL
}

// Load navigates the hosted page to url.
func (p *Panel) Load(ctx context.Context, rawURL string) error {
	if err := urlguard.ValidateURL(rawURL); err != nil {
		return fmt.Errorf("panel: %w", err)
	}

	p.mu.RLock()
	page, closed := p.page, p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if page == nil {
		return ErrNotStarted
	}

	if err := p.navigate(ctx, page, rawURL); err != nil {
		return err
	}

	p.mu.Lock()
	p.loadedURL = rawURL
	p.lastSnapshot = nil
	p.mu.Unlock()
	return nil
}

// Unload captures a snapshot of the hosted page and parks it on
// about:blank. With nothing loaded it is a no-op.
func (p *Panel) Unload(ctx context.Context) error {
	p.mu.RLock()
	page, url, closed := p.page, p.loadedURL, p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if page == nil || url == "" {
		return nil
	}

	snap := p.capture(ctx, page, url)

	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate("about:blank"); err != nil {
		return fmt.Errorf("panel: unload: %w", err)
	}

	p.mu.Lock()
	p.loadedURL = ""
	if snap != nil {
		p.lastSnapshot = snap
	}
	p.mu.Unlock()
	return nil
}

func (p *Panel) navigate(ctx context.Context, page *rod.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("panel: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		p.cfg.Logger.Warn("panel: wait load timeout", "url", url, "error", err)
	}
	return nil
}
