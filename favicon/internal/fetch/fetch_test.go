package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// noopValidator allows all URLs (for tests that don't test SSRF).
func noopValidator(_ string) error { return nil }

func TestFetch_Success(t *testing.T) {
	// WHAT: Basic HTTP GET returns body, status, and content type.
	// WHY: Core fetcher functionality for the favicon source chain.
	body := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	f := New(Config{URLValidator: noopValidator})
	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("status: got %d", result.StatusCode)
	}
	if string(result.Body) != string(body) {
		t.Errorf("body: got %q", string(result.Body))
	}
	if result.ContentType != "image/png" {
		t.Errorf("content type: got %q", result.ContentType)
	}
}

func TestFetch_Non2xx(t *testing.T) {
	// WHAT: A 404 response is an error, not a zero-byte success.
	// WHY: The source chain must treat missing icons as a miss and move on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(Config{URLValidator: noopValidator})
	result, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if result == nil || result.StatusCode != 404 {
		t.Errorf("expected status 404 in result, got %+v", result)
	}
}

func TestFetch_Timeout(t *testing.T) {
	// WHAT: Fetch respects the configured per-request timeout.
	// WHY: A hung icon source must not stall favicon resolution.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 100 * time.Millisecond, URLValidator: noopValidator})
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, expected ~100ms", elapsed)
	}
}

func TestFetch_MaxBody(t *testing.T) {
	// WHAT: Bodies exceeding MaxBytes are rejected outright.
	// WHY: A truncated icon is garbage; better to fail and try the next source.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 1000; i++ {
			w.Write([]byte("x"))
		}
	}))
	defer srv.Close()

	f := New(Config{MaxBytes: 100, URLValidator: noopValidator})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for oversized body")
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected size error, got: %v", err)
	}
}

// --- SSRF protection tests ---

func TestFetch_ValidateURL_PrivateIP(t *testing.T) {
	// WHAT: Private IP URLs are blocked before request.
	// WHY: SSRF prevention — favicon URLs derive from user-supplied sites.
	f := New(Config{})
	_, err := f.Fetch(context.Background(), "http://192.168.1.1/favicon.ico")
	if err == nil {
		t.Fatal("expected error for private IP URL")
	}
	if !strings.Contains(err.Error(), "SSRF") {
		t.Errorf("expected SSRF error, got: %v", err)
	}
}

func TestFetch_RedirectToPrivate(t *testing.T) {
	// WHAT: Redirect to private IP is blocked by CheckRedirect.
	// WHY: Open redirect → SSRF is a common attack chain.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://10.255.255.1/favicon.ico", http.StatusFound)
	}))
	defer srv.Close()

	// allowFirst allows the first URL (httptest loopback) but blocks everything after.
	first := true
	allowFirst := func(u string) error {
		if first {
			first = false
			return nil
		}
		return fmt.Errorf("SSRF: private IP blocked")
	}

	f := New(Config{URLValidator: allowFirst})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for redirect to private IP")
	}
	if !strings.Contains(err.Error(), "SSRF") {
		t.Errorf("expected SSRF in error, got: %v", err)
	}
}

func TestFetch_TooManyRedirects(t *testing.T) {
	// WHAT: More than 5 redirects are blocked.
	// WHY: Redirect loop protection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.String()+"x", http.StatusFound)
	}))
	defer srv.Close()

	f := New(Config{URLValidator: noopValidator})
	_, err := f.Fetch(context.Background(), srv.URL+"/start")
	if err == nil {
		t.Fatal("expected error for too many redirects")
	}
	if !strings.Contains(err.Error(), "redirect") {
		t.Errorf("expected redirect error, got: %v", err)
	}
}
