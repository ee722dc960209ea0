package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Transport is the outbound HTTP collaborator. Get returns the status and
// raw body; Post returns the status only. Both take a base64 basic-auth
// credential as the remote hosts expect.
type Transport interface {
	Get(ctx context.Context, rawURL string, query url.Values, authB64 string) (int, []byte, error)
	Post(ctx context.Context, rawURL string, body any, authB64 string) (int, error)
}

type HTTPTransportOptions struct {
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	CacheTTL   time.Duration
	MaxCached  int
}

// HTTPTransport retries connection-level failures with capped exponential
// backoff, honors Retry-After on 429 and 5xx, and caches GET responses for a
// short TTL so a burst of sync runs does not hammer remote nodes.
type HTTPTransport struct {
	httpClient *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	cacheTTL   time.Duration
	maxCached  int

	cacheMu sync.Mutex
	cache   map[string]cachedResponse
}

type cachedResponse struct {
	status  int
	body    []byte
	expires time.Time
}

func NewHTTPTransport(opts HTTPTransportOptions) *HTTPTransport {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	maxCached := opts.MaxCached
	if maxCached <= 0 {
		maxCached = 1024
	}
	return &HTTPTransport{
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		cacheTTL:   cacheTTL,
		maxCached:  maxCached,
		cache:      map[string]cachedResponse{},
	}
}

func (t *HTTPTransport) Get(ctx context.Context, rawURL string, query url.Values, authB64 string) (int, []byte, error) {
	fullURL := rawURL
	if len(query) > 0 {
		separator := "?"
		if strings.Contains(rawURL, "?") {
			separator = "&"
		}
		fullURL = rawURL + separator + query.Encode()
	}

	if cached, ok := t.cachedGet(fullURL); ok {
		return cached.status, cached.body, nil
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return 0, nil, err
		}
		t.setHeaders(req, authB64, false)

		resp, err := t.httpClient.Do(req)
		if err != nil {
			if attempt < t.maxRetries {
				if waitErr := sleepContext(ctx, t.retryDelay(attempt+1, "")); waitErr != nil {
					return 0, nil, waitErr
				}
				continue
			}
			return 0, nil, err
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return 0, nil, readErr
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < t.maxRetries {
			if waitErr := sleepContext(ctx, t.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return 0, nil, waitErr
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			t.storeCached(fullURL, cachedResponse{status: resp.StatusCode, body: body})
		}
		return resp.StatusCode, body, nil
	}
}

func (t *HTTPTransport) Post(ctx context.Context, rawURL string, body any, authB64 string) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return 0, err
		}
		t.setHeaders(req, authB64, true)

		resp, err := t.httpClient.Do(req)
		if err != nil {
			if attempt < t.maxRetries {
				if waitErr := sleepContext(ctx, t.retryDelay(attempt+1, "")); waitErr != nil {
					return 0, waitErr
				}
				continue
			}
			return 0, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < t.maxRetries {
			if waitErr := sleepContext(ctx, t.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return 0, waitErr
			}
			continue
		}
		return resp.StatusCode, nil
	}
}

func (t *HTTPTransport) setHeaders(req *http.Request, authB64 string, hasBody bool) {
	if strings.TrimSpace(authB64) != "" {
		req.Header.Set("Authorization", "Basic "+strings.TrimSpace(authB64))
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
}

func (t *HTTPTransport) cachedGet(fullURL string) (cachedResponse, bool) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	cached, ok := t.cache[fullURL]
	if !ok {
		return cachedResponse{}, false
	}
	if time.Now().After(cached.expires) {
		delete(t.cache, fullURL)
		return cachedResponse{}, false
	}
	return cached, true
}

func (t *HTTPTransport) storeCached(fullURL string, entry cachedResponse) {
	entry.expires = time.Now().Add(t.cacheTTL)
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	if len(t.cache) >= t.maxCached {
		for key := range t.cache {
			delete(t.cache, key)
			break
		}
	}
	t.cache[fullURL] = entry
}

// Invalidate drops every cached GET response, used after local writes that
// should be visible to the next sync run immediately.
func (t *HTTPTransport) Invalidate() {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	t.cache = map[string]cachedResponse{}
}

func (t *HTTPTransport) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > t.maxDelay {
			return t.maxDelay
		}
		return retryAfter
	}
	delay := t.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= t.maxDelay {
			return t.maxDelay
		}
	}
	if delay > t.maxDelay {
		return t.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// statusError reports a non-success push response.
func statusError(status int, url string) error {
	return &HTTPError{StatusCode: status, Message: fmt.Sprintf("unexpected status %d from %s", status, url)}
}
