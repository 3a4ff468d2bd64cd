package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/quai/dbopen"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seqIDs returns a deterministic ID generator: id-1, id-2, ...
func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// newTestService builds a registry over an in-memory DB with four named
// seeds so ordering assertions read naturally.
func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	cfg := &Config{Seeds: []Seed{
		{Name: "Alpha", URL: "https://alpha.test"},
		{Name: "Bravo", URL: "https://bravo.test"},
		{Name: "Charlie", URL: "https://charlie.test"},
		{Name: "Delta", URL: "https://delta.test"},
	}}
	svc, err := New(db, cfg, discardLogger(), WithIDGenerator(seqIDs()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, db
}

func names(sites []*Site) []string {
	out := make([]string, len(sites))
	for i, s := range sites {
		out[i] = s.Name
	}
	return out
}

func assertOrder(t *testing.T, sites []*Site, want ...string) {
	t.Helper()
	got := names(sites)
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	for i, s := range sites {
		if s.Position != i {
			t.Errorf("site %q position = %d, want %d", s.Name, s.Position, i)
		}
	}
}

func TestSeedsOnFirstLoad(t *testing.T) {
	// WHAT: An empty store is seeded from the config on first access, with
	// sequential positions and the default color where the seed has none.
	// WHY: A fresh install must show a usable sidebar, not an empty list.
	svc, _ := newTestService(t)
	ctx := context.Background()

	sites, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	assertOrder(t, sites, "Alpha", "Bravo", "Charlie", "Delta")
	for _, s := range sites {
		if s.Color != DefaultColor {
			t.Errorf("seed %q color = %q, want default", s.Name, s.Color)
		}
		if s.CreatedAt == 0 || s.UpdatedAt == 0 {
			t.Errorf("seed %q missing timestamps", s.Name)
		}
	}
}

func TestAdd(t *testing.T) {
	// WHAT: Add appends at the end with a fresh ID, sanitized name,
	// scheme-normalized URL, and the default color when none is given.
	svc, _ := newTestService(t)
	ctx := context.Background()

	site, err := svc.Add(ctx, "  <b>Example</b>  ", "example.org/path", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if site.Name != "Example" {
		t.Errorf("name = %q, want markup stripped and trimmed", site.Name)
	}
	if site.URL != "https://example.org/path" {
		t.Errorf("url = %q, want https scheme prepended", site.URL)
	}
	if site.Color != DefaultColor {
		t.Errorf("color = %q, want %q", site.Color, DefaultColor)
	}
	if site.Position != 4 {
		t.Errorf("position = %d, want 4", site.Position)
	}
	if site.ID == "" {
		t.Error("missing id")
	}

	sites, _ := svc.List(ctx)
	assertOrder(t, sites, "Alpha", "Bravo", "Charlie", "Delta", "Example")
}

func TestAdd_Invalid(t *testing.T) {
	// WHAT: Empty name, empty URL, malformed URL, and oversized fields all
	// surface ErrInvalidInput and leave the list unchanged.
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		label string
		name  string
		url   string
	}{
		{"empty name", "", "https://x.test"},
		{"empty url", "X", ""},
		{"url with spaces", "X", "not a url"},
		{"missing host", "X", "https://"},
		{"oversized name", strings.Repeat("n", maxNameLen+1), "https://x.test"},
	}
	for _, tc := range cases {
		if _, err := svc.Add(ctx, tc.name, tc.url, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tc.label, err)
		}
	}

	sites, _ := svc.List(ctx)
	if len(sites) != 4 {
		t.Fatalf("list grew to %d after rejected adds", len(sites))
	}
}

func TestAdd_DuplicateURLAllowed(t *testing.T) {
	// WHAT: Add permits a URL that already exists; only import dedups.
	// WHY: Users legitimately pin the same site twice with different names.
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "Alpha Again", "https://alpha.test", ""); err != nil {
		t.Fatalf("duplicate URL rejected: %v", err)
	}
	sites, _ := svc.List(ctx)
	if len(sites) != 5 {
		t.Fatalf("len = %d, want 5", len(sites))
	}
}

func TestUpdate(t *testing.T) {
	// WHAT: Update replaces only the supplied fields, keeps position, and
	// bumps UpdatedAt; a stale ID reports false without error.
	svc, _ := newTestService(t)
	ctx := context.Background()

	sites, _ := svc.List(ctx)
	target := sites[1]

	updated, err := svc.Update(ctx, &Site{ID: target.ID, Name: "Renamed"})
	if err != nil || !updated {
		t.Fatalf("Update = %v, %v; want true, nil", updated, err)
	}

	after, _ := svc.Get(ctx, target.ID)
	if after.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", after.Name)
	}
	if after.URL != target.URL || after.Color != target.Color {
		t.Errorf("untouched fields changed: url %q color %q", after.URL, after.Color)
	}
	if after.Position != 1 {
		t.Errorf("position = %d, want 1 preserved", after.Position)
	}
	if after.CreatedAt != target.CreatedAt {
		t.Errorf("created_at changed on update")
	}

	updated, err = svc.Update(ctx, &Site{ID: "no-such-id", Name: "X"})
	if err != nil || updated {
		t.Fatalf("stale update = %v, %v; want false, nil", updated, err)
	}
}

func TestUpdate_InvalidURLKeepsState(t *testing.T) {
	// WHAT: An invalid replacement URL fails validation and the stored
	// site is untouched.
	svc, _ := newTestService(t)
	ctx := context.Background()

	sites, _ := svc.List(ctx)
	target := sites[0]

	if _, err := svc.Update(ctx, &Site{ID: target.ID, URL: "not a url"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	after, _ := svc.Get(ctx, target.ID)
	if after.URL != target.URL {
		t.Errorf("url changed to %q after failed update", after.URL)
	}
}

func TestRemove(t *testing.T) {
	// WHAT: Remove deletes by ID and resequences positions; a missing ID
	// is a silent no-op.
	svc, _ := newTestService(t)
	ctx := context.Background()

	sites, _ := svc.List(ctx)
	removedActive, err := svc.Remove(ctx, sites[1].ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removedActive {
		t.Error("removed_active true with no active site set")
	}

	after, _ := svc.List(ctx)
	assertOrder(t, after, "Alpha", "Charlie", "Delta")

	if _, err := svc.Remove(ctx, "no-such-id"); err != nil {
		t.Fatalf("missing ID should be a no-op, got %v", err)
	}
}

func TestActiveLifecycle(t *testing.T) {
	// WHAT: The active marker is opaque state: set, read, clear, and
	// cleared automatically when the active site is removed.
	svc, _ := newTestService(t)
	ctx := context.Background()

	if id, _ := svc.Active(ctx); id != "" {
		t.Fatalf("initial active = %q, want empty", id)
	}

	sites, _ := svc.List(ctx)
	target := sites[2]
	if err := svc.SetActive(ctx, target.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if id, _ := svc.Active(ctx); id != target.ID {
		t.Fatalf("active = %q, want %q", id, target.ID)
	}

	removedActive, err := svc.Remove(ctx, target.ID)
	if err != nil || !removedActive {
		t.Fatalf("Remove active = %v, %v; want true, nil", removedActive, err)
	}
	if id, _ := svc.Active(ctx); id != "" {
		t.Fatalf("active after removal = %q, want cleared", id)
	}

	// Explicit clear.
	svc.SetActive(ctx, sites[0].ID)
	svc.SetActive(ctx, "")
	if id, _ := svc.Active(ctx); id != "" {
		t.Fatalf("active after clear = %q, want empty", id)
	}
}

func TestReorder_SpliceRule(t *testing.T) {
	// WHAT: Reorder removes first, then inserts: (0,3) on [A B C D] yields
	// [B C A D], and the operation is not its own inverse.
	// WHY: The indices come from drag-and-drop DOM positions, which count
	// against the list as it looked before the removal.
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Reorder(ctx, 0, 3); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	sites, _ := svc.List(ctx)
	assertOrder(t, sites, "Bravo", "Charlie", "Alpha", "Delta")

	// Applying the mirrored move does not restore the original order.
	if err := svc.Reorder(ctx, 3, 0); err != nil {
		t.Fatalf("Reorder back: %v", err)
	}
	sites, _ = svc.List(ctx)
	assertOrder(t, sites, "Delta", "Bravo", "Charlie", "Alpha")
}

func TestReorder_Clamps(t *testing.T) {
	// WHAT: Destination indices beyond either end clamp to the ends; an
	// out-of-range source is a no-op.
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.Reorder(ctx, 1, 99)
	sites, _ := svc.List(ctx)
	assertOrder(t, sites, "Alpha", "Charlie", "Delta", "Bravo")

	svc.Reorder(ctx, 2, -5)
	sites, _ = svc.List(ctx)
	assertOrder(t, sites, "Delta", "Alpha", "Charlie", "Bravo")

	svc.Reorder(ctx, 9, 0)
	sites, _ = svc.List(ctx)
	assertOrder(t, sites, "Delta", "Alpha", "Charlie", "Bravo")
}

func TestPersistenceAcrossInstances(t *testing.T) {
	// WHAT: Mutations and ordering survive a service restart on the same
	// database file.
	// WHY: The in-memory working set is a cache; SQLite is the truth.
	svc, db := newTestService(t)
	ctx := context.Background()

	svc.Add(ctx, "Echo", "https://echo.test", "#123456")
	svc.Reorder(ctx, 4, 0)
	sites, _ := svc.List(ctx)
	svc.SetActive(ctx, sites[0].ID)

	again, err := New(db, &Config{Seeds: []Seed{{Name: "X", URL: "https://x.test"}}}, discardLogger())
	if err != nil {
		t.Fatalf("New again: %v", err)
	}
	reloaded, _ := again.List(ctx)
	assertOrder(t, reloaded, "Echo", "Alpha", "Bravo", "Charlie", "Delta")
	if reloaded[0].Color != "#123456" {
		t.Errorf("color = %q, want persisted #123456", reloaded[0].Color)
	}
	if id, _ := again.Active(ctx); id != sites[0].ID {
		t.Errorf("active = %q, want %q across restart", id, sites[0].ID)
	}
}

func TestGet(t *testing.T) {
	// WHAT: Get returns a copy by ID and nil for unknown IDs.
	svc, _ := newTestService(t)
	ctx := context.Background()

	sites, _ := svc.List(ctx)
	got, err := svc.Get(ctx, sites[0].ID)
	if err != nil || got == nil || got.Name != "Alpha" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	// Mutating the returned struct must not leak into the working set.
	got.Name = "Mutated"
	fresh, _ := svc.Get(ctx, sites[0].ID)
	if fresh.Name != "Alpha" {
		t.Error("Get returned a shared pointer, not a copy")
	}

	missing, err := svc.Get(ctx, "no-such-id")
	if missing != nil || err != nil {
		t.Fatalf("missing Get = %+v, %v; want nil, nil", missing, err)
	}
}

func TestClockInjection(t *testing.T) {
	// WHAT: Timestamps come from the injected clock.
	db := dbopen.OpenMemory(t)
	fixed := time.UnixMilli(1_700_000_000_000)
	svc, err := New(db, &Config{Seeds: []Seed{{Name: "A", URL: "https://a.test"}}},
		discardLogger(), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	site, err := svc.Add(context.Background(), "B", "https://b.test", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if site.CreatedAt != fixed.UnixMilli() || site.UpdatedAt != fixed.UnixMilli() {
		t.Errorf("timestamps = %d/%d, want %d", site.CreatedAt, site.UpdatedAt, fixed.UnixMilli())
	}
}
