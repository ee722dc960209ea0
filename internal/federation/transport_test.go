package federation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestTransport(retries int) *HTTPTransport {
	return NewHTTPTransport(HTTPTransportOptions{
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
}

func TestTransportRetriesOnServerError(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	transport := newTestTransport(3)
	status, body, err := transport.Get(context.Background(), server.URL, nil, "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if status != 200 {
		t.Fatalf("expected 200 after retries, got %d", status)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestTransportReturns404WithoutRetry(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	transport := newTestTransport(3)
	status, _, err := transport.Get(context.Background(), server.URL, nil, "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx must not retry, got %d attempts", hits.Load())
	}
}

func TestTransportCachesSuccessfulGets(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport := newTestTransport(1)
	for i := 0; i < 3; i++ {
		if _, _, err := transport.Get(context.Background(), server.URL, nil, ""); err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 upstream hit with caching, got %d", hits.Load())
	}

	transport.Invalidate()
	if _, _, err := transport.Get(context.Background(), server.URL, nil, ""); err != nil {
		t.Fatalf("get after invalidate failed: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected a fresh hit after invalidation, got %d", hits.Load())
	}
}

func TestTransportCacheKeyIncludesQuery(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport := newTestTransport(1)
	q1 := url.Values{"page": []string{"1"}}
	q2 := url.Values{"page": []string{"2"}}
	transport.Get(context.Background(), server.URL, q1, "")
	transport.Get(context.Background(), server.URL, q2, "")
	if hits.Load() != 2 {
		t.Fatalf("different pages must not share cache entries, got %d hits", hits.Load())
	}
}

func TestTransportSendsBasicAuthAndJSON(t *testing.T) {
	type seen struct {
		auth        string
		contentType string
	}
	received := make(chan seen, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- seen{auth: r.Header.Get("Authorization"), contentType: r.Header.Get("Content-Type")}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	transport := newTestTransport(1)
	status, err := transport.Post(context.Background(), server.URL, map[string]any{"type": "post"}, "dG9rZW4=")
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if status != 201 {
		t.Fatalf("expected 201, got %d", status)
	}
	got := <-received
	if got.auth != "Basic dG9rZW4=" {
		t.Fatalf("unexpected auth header %q", got.auth)
	}
	if got.contentType != "application/json" {
		t.Fatalf("unexpected content type %q", got.contentType)
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	transport := NewHTTPTransport(HTTPTransportOptions{
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  3 * time.Second,
	})
	if got := transport.retryDelay(1, "2"); got != 2*time.Second {
		t.Fatalf("expected 2s from Retry-After, got %s", got)
	}
	if got := transport.retryDelay(1, "10"); got != 3*time.Second {
		t.Fatalf("Retry-After must cap at max delay, got %s", got)
	}
	if got := transport.retryDelay(1, ""); got != 10*time.Millisecond {
		t.Fatalf("expected base delay, got %s", got)
	}
	if got := transport.retryDelay(3, ""); got != 40*time.Millisecond {
		t.Fatalf("expected doubled delay, got %s", got)
	}
}
