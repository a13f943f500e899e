package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/substantiate/internal/cache"
	"github.com/ppiankov/substantiate/internal/model"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "", "internal.example")

	req, _ := http.NewRequest(http.MethodGet, "https://pubmed.ncbi.nlm.nih.gov/", nil)
	u, err := proxy(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.Host != "proxy.local:3128" {
		t.Errorf("expected https to fall back to http proxy, got %v", u)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://internal.example/x", nil)
	u, err = proxy(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Errorf("expected no proxy for excluded host, got %v", u)
	}
}

func TestNewHTTPClient_RedirectLimit(t *testing.T) {
	var hops int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hops, 1)
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer srv.Close()

	client := NewHTTPClient(model.HTTPConfig{Timeout: 5 * time.Second}, 2)
	_, err := client.Get(srv.URL)
	if err == nil {
		t.Fatal("expected redirect error")
	}
	if got := atomic.LoadInt32(&hops); got != 2 {
		t.Errorf("expected 2 requests before giving up, got %d", got)
	}
}

func TestRobotsChecker(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&fetches, 1)
			_, _ = w.Write([]byte("User-agent: Substantiate\nDisallow: /private\nCrawl-delay: 2\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	checker := NewRobotsChecker(srv.Client(), "Substantiate/0.1 (+https://example.org)", cache.NewMemoryCache(time.Minute, time.Minute))

	allowed, delay, err := checker.CanFetch(ctx, srv.URL+"/articles/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected /articles to be allowed")
	}
	if delay != 2*time.Second {
		t.Errorf("expected crawl delay 2s, got %v", delay)
	}

	if checker.IsAllowed(ctx, srv.URL+"/private/x") {
		t.Error("expected /private to be disallowed")
	}

	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Errorf("expected robots.txt fetched once, got %d", got)
	}
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	checker := NewRobotsChecker(srv.Client(), "Substantiate", nil)
	if !checker.IsAllowed(context.Background(), srv.URL+"/anything") {
		t.Error("expected fetch allowed when robots.txt is missing")
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	if got := NormalizeUserAgent("Substantiate/0.1 (+https://x)"); got != "Substantiate" {
		t.Errorf("got %q", got)
	}
	if got := NormalizeUserAgent(""); got != "" {
		t.Errorf("got %q", got)
	}
}
