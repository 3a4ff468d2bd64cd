package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hazyhaar/quai/observability"
)

// ExportFileName is the conventional download filename for exports.
const ExportFileName = "sidebar-sites.json"

// transferSite is the export/import wire shape. Unknown fields in import
// payloads are ignored.
type transferSite struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Color string `json:"color"`
}

// ImportMode selects how imported entries combine with the working set.
type ImportMode string

const (
	// ImportReplace makes the registry exactly the valid imported set.
	ImportReplace ImportMode = "replace"
	// ImportMerge appends imported entries whose URL is not already present.
	ImportMerge ImportMode = "merge"
)

// ImportResult reports what an import did.
type ImportResult struct {
	Mode     ImportMode `json:"mode"`
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Total    int        `json:"total"`
}

// ExportAll returns the ordered snapshot, verbatim.
func (svc *Service) ExportAll(ctx context.Context) ([]*Site, error) {
	return svc.List(ctx)
}

// ExportJSON renders the site list as a pretty-printed JSON array of
// {id, name, url, color} objects, the sidebar-sites.json file format.
func (svc *Service) ExportJSON(ctx context.Context) ([]byte, error) {
	sites, err := svc.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]transferSite, 0, len(sites))
	for _, s := range sites {
		out = append(out, transferSite{ID: s.ID, Name: s.Name, URL: s.URL, Color: s.Color})
	}
	return json.MarshalIndent(out, "", "  ")
}

// ImportJSON applies a sidebar-sites.json payload to the registry.
//
// Entries are validated one by one; invalid entries are dropped silently.
// A missing ID gets a fresh one, a missing color the default, and URLs are
// scheme-normalized. A payload that is not a JSON array surfaces
// ErrInvalidInput; a payload with no valid entries surfaces
// ErrNothingToImport. Both leave the registry untouched.
//
// Replace makes the registry exactly the valid set in imported order.
// Merge appends entries whose normalized URL is not already present, in
// imported order; URL collisions are dropped, never overwritten.
func (svc *Service) ImportJSON(ctx context.Context, raw []byte, mode ImportMode) (*ImportResult, error) {
	if mode != ImportReplace && mode != ImportMerge {
		return nil, fmt.Errorf("%w: unknown import mode %q", ErrInvalidInput, mode)
	}
	var entries []transferSite
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrInvalidInput)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.ensureLoadedLocked(ctx)

	nowMs := svc.now().UnixMilli()
	valid := make([]*Site, 0, len(entries))
	skipped := 0
	claimed := make(map[string]bool, len(entries))
	for _, e := range entries {
		site := &Site{
			ID:    strings.TrimSpace(e.ID),
			Name:  svc.cleanName(e.Name),
			URL:   strings.TrimSpace(e.URL),
			Color: strings.TrimSpace(e.Color),
		}
		if site.Color == "" {
			site.Color = DefaultColor
		}
		if err := validateSiteInput(site); err != nil {
			skipped++
			continue
		}
		normalized, err := NormalizeSiteURL(site.URL)
		if err != nil {
			skipped++
			continue
		}
		site.URL = normalized
		if site.ID == "" || claimed[site.ID] {
			site.ID = svc.newID()
		}
		claimed[site.ID] = true
		site.CreatedAt, site.UpdatedAt = nowMs, nowMs
		valid = append(valid, site)
	}
	if len(valid) == 0 {
		return nil, ErrNothingToImport
	}

	res := &ImportResult{Mode: mode, Skipped: skipped}
	switch mode {
	case ImportReplace:
		svc.sites = valid
		res.Imported = len(valid)
	case ImportMerge:
		existingURL := make(map[string]bool, len(svc.sites))
		existingID := make(map[string]bool, len(svc.sites))
		for _, s := range svc.sites {
			existingURL[s.URL] = true
			existingID[s.ID] = true
		}
		for _, site := range valid {
			if existingURL[site.URL] {
				res.Skipped++
				continue
			}
			if existingID[site.ID] {
				site.ID = svc.newID()
			}
			svc.sites = append(svc.sites, site)
			existingURL[site.URL] = true
			existingID[site.ID] = true
			res.Imported++
		}
	}
	res.Total = len(svc.sites)

	svc.persistLocked(ctx)
	if svc.events != nil {
		svc.events.LogEvent(ctx, observability.BusinessEvent{
			EventType:   "sites_imported",
			ServiceName: "registry",
			EntityType:  "site",
			Action:      "import",
			Details:     fmt.Sprintf(`{"mode":%q,"imported":%d,"skipped":%d}`, mode, res.Imported, res.Skipped),
			Success:     true,
		})
	}
	return res, nil
}
