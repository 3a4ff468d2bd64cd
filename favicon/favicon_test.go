package favicon

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/quai/dbopen"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopValidator(_ string) error { return nil }

// pngBody returns a payload that sniffs as image/png and clears the
// minimum-size threshold. The marker makes payloads distinguishable.
func pngBody(marker byte) []byte {
	sig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return append(sig, bytes.Repeat([]byte{marker}, 120)...)
}

// testService builds a Service whose only source is the given handler.
func testService(t *testing.T, handler http.Handler, opts ...ServiceOption) (*Service, *httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := &Config{
		URLValidator:     noopValidator,
		DisableDiscovery: true,
		Sources: []Source{
			{Name: "test", URL: func(host string) string { return srv.URL + "/icon" }},
		},
	}
	svc, err := New(dbopen.OpenMemory(t), cfg, discardLogger(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, srv, &calls
}

func TestResolve_CacheFreshness(t *testing.T) {
	// WHAT: A 6-day-old entry is served from cache with zero network calls;
	// an 8-day-old entry triggers the source chain again.
	// WHY: The 7-day TTL is the cache's entire contract.
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	svc, _, calls := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody('a'))
	}), WithClock(clock))

	ctx := context.Background()
	first := svc.Resolve(ctx, "https://example.test/page")
	if first == "" {
		t.Fatal("expected icon from source")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls.Load())
	}

	now = now.Add(6 * 24 * time.Hour)
	if got := svc.Resolve(ctx, "https://example.test/page"); got != first {
		t.Errorf("6-day-old entry: expected cache hit with same icon")
	}
	if calls.Load() != 1 {
		t.Errorf("6-day-old entry: expected zero new fetches, got %d total", calls.Load())
	}

	now = now.Add(2 * 24 * time.Hour) // 8 days since fetch
	if got := svc.Resolve(ctx, "https://example.test/page"); got != first {
		t.Errorf("8-day-old entry: expected refetched icon")
	}
	if calls.Load() != 2 {
		t.Errorf("8-day-old entry: expected chain attempt, got %d total fetches", calls.Load())
	}
}

func TestResolve_ExhaustionKeepsStaleRow(t *testing.T) {
	// WHAT: When every source fails, Resolve returns "" and the stale cache
	// row is left untouched (no negative caching, no purge).
	// WHY: The stale entry is superseded only by the next successful fetch.
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	var fail atomic.Bool

	svc, _, _ := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody('b'))
	}), WithClock(clock))

	ctx := context.Background()
	first := svc.Resolve(ctx, "https://example.test")
	if first == "" {
		t.Fatal("expected icon from source")
	}
	seededAt := now.UnixMilli()

	now = now.Add(8 * 24 * time.Hour)
	fail.Store(true)
	if got := svc.Resolve(ctx, "https://example.test"); got != "" {
		t.Errorf("expected \"\" on exhaustion, got %q", got[:32])
	}

	row, err := svc.store.Get(ctx, "example.test")
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if row == nil {
		t.Fatal("stale row was purged")
	}
	if row.DataURL != first || row.FetchedAt != seededAt {
		t.Errorf("stale row modified: fetchedAt %d (want %d)", row.FetchedAt, seededAt)
	}
}

func TestResolve_StampsCacheAfterFetch(t *testing.T) {
	// WHAT: The cache row's fetchedAt reflects the time the fetch finished,
	// not the time Resolve started.
	// WHY: A slow source chain would otherwise backdate the entry and shave
	// the wait off its TTL.
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var readings atomic.Int64
	// Each clock reading advances 3s, standing in for a slow chain.
	clock := func() time.Time {
		return base.Add(time.Duration(readings.Add(1)-1) * 3 * time.Second)
	}

	svc, _, _ := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody('f'))
	}), WithClock(clock))

	ctx := context.Background()
	if got := svc.Resolve(ctx, "https://example.test"); got == "" {
		t.Fatal("expected icon from source")
	}

	row, err := svc.store.Get(ctx, "example.test")
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if row == nil {
		t.Fatal("expected cache row")
	}
	want := base.Add(3 * time.Second).UnixMilli()
	if row.FetchedAt != want {
		t.Errorf("fetchedAt %d, want %d (stamped after the chain ran)", row.FetchedAt, want)
	}
}

func TestResolve_SkipsUndersizedPayload(t *testing.T) {
	// WHAT: A payload below MinIconBytes is rejected and the chain moves on.
	// WHY: Tiny responses are placeholder images, not real icons.
	tiny := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer tiny.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody('c'))
	}))
	defer good.Close()

	cfg := &Config{
		URLValidator:     noopValidator,
		DisableDiscovery: true,
		Sources: []Source{
			{Name: "tiny", URL: func(string) string { return tiny.URL }},
			{Name: "good", URL: func(string) string { return good.URL }},
		},
	}
	svc, err := New(dbopen.OpenMemory(t), cfg, discardLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	got := svc.Resolve(context.Background(), "https://example.test")
	want := encodeDataURL("image/png", pngBody('c'))
	if got != want {
		t.Errorf("expected icon from second source")
	}
}

func TestResolve_SkipsNonImagePayload(t *testing.T) {
	// WHAT: A 200 response that isn't an image (HTML error page) is rejected.
	// WHY: Many sites serve their SPA shell with status 200 for any path.
	htmlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<!DOCTYPE html><html><body>" + string(bytes.Repeat([]byte("x"), 200)) + "</body></html>"))
	}))
	defer htmlSrv.Close()

	cfg := &Config{
		URLValidator:     noopValidator,
		DisableDiscovery: true,
		Sources: []Source{
			{Name: "html", URL: func(string) string { return htmlSrv.URL }},
		},
	}
	svc, err := New(dbopen.OpenMemory(t), cfg, discardLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if got := svc.Resolve(context.Background(), "https://example.test"); got != "" {
		t.Errorf("expected \"\" for non-image payload, got %q", got[:32])
	}
}

func TestResolve_PerSourceTimeout(t *testing.T) {
	// WHAT: A hanging source is abandoned at SourceTimeout and the chain
	// continues to the next source.
	// WHY: One dead icon service must not stall favicon resolution.
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer slow.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody('d'))
	}))
	defer good.Close()

	cfg := &Config{
		SourceTimeout:    100 * time.Millisecond,
		URLValidator:     noopValidator,
		DisableDiscovery: true,
		Sources: []Source{
			{Name: "slow", URL: func(string) string { return slow.URL }},
			{Name: "good", URL: func(string) string { return good.URL }},
		},
	}
	svc, err := New(dbopen.OpenMemory(t), cfg, discardLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	start := time.Now()
	got := svc.Resolve(context.Background(), "https://example.test")
	elapsed := time.Since(start)

	if got == "" {
		t.Fatal("expected icon from fallback source")
	}
	if elapsed > time.Second {
		t.Errorf("chain stalled for %v; per-source bound is 100ms", elapsed)
	}
}

func TestResolve_Discovery(t *testing.T) {
	// WHAT: With every template source failing, the page's own
	// <link rel="icon"> declaration is discovered and fetched.
	// WHY: Last-resort step for sites unknown to the icon services.
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html><html><head><link rel="shortcut icon" href="/assets/fav.png"></head><body>hi</body></html>`))
	})
	mux.HandleFunc("/assets/fav.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody('e'))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &Config{
		URLValidator: noopValidator,
		Sources:      []Source{}, // no template sources; discovery only
	}
	svc, err := New(dbopen.OpenMemory(t), cfg, discardLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	got := svc.Resolve(context.Background(), srv.URL+"/")
	want := encodeDataURL("image/png", pngBody('e'))
	if got != want {
		t.Errorf("expected discovered icon, got %q", got)
	}
}

func TestResolve_BadSiteURL(t *testing.T) {
	// WHAT: Unparseable or schemeless site URLs resolve to "" immediately.
	// WHY: Hostname extraction is strict; normalization happens upstream.
	svc, _, calls := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, raw := range []string{"", "wikipedia.org", "://bad", "%%%"} {
		if got := svc.Resolve(context.Background(), raw); got != "" {
			t.Errorf("Resolve(%q): expected \"\", got %q", raw, got)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("expected zero fetches for bad URLs, got %d", calls.Load())
	}
}
