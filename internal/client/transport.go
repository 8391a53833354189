package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"habitTrackerAPI/internal/logger"
)

const (
	defaultTransportSWR = time.Minute
	maxCachedBody       = 1 << 20
)

type cachedResponse struct {
	status    int
	header    http.Header
	body      []byte
	createdAt time.Time
}

// CachingTransport is an http.RoundTripper that keeps successful GET
// responses for TTL and serves them for a further SWR window while one
// background request refreshes the entry.
type CachingTransport struct {
	Base http.RoundTripper
	TTL  time.Duration
	SWR  time.Duration

	now   func() time.Time
	group singleflight.Group
	wg    sync.WaitGroup

	mu      sync.RWMutex
	entries map[string]cachedResponse
	// gen advances on every Purge. A GET only stores its response when no
	// purge happened while it was in flight.
	gen uint64
}

func NewCachingTransport(base http.RoundTripper, ttl time.Duration) *CachingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &CachingTransport{
		Base:    base,
		TTL:     ttl,
		SWR:     defaultTransportSWR,
		now:     time.Now,
		entries: make(map[string]cachedResponse),
	}
}

func (t *CachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		resp, err := t.Base.RoundTrip(req)
		if err == nil && resp.StatusCode < 400 {
			// Any accepted write may change what the GET endpoints return.
			t.Purge()
		}
		return resp, err
	}
	if t.TTL <= 0 || strings.Contains(req.Header.Get("Cache-Control"), "no-cache") {
		return t.fetch(req, cacheKey(req))
	}

	key := cacheKey(req)
	t.mu.RLock()
	entry, ok := t.entries[key]
	t.mu.RUnlock()

	if ok {
		age := t.now().Sub(entry.createdAt)
		switch {
		case age <= t.TTL:
			return entry.response(req), nil
		case age <= t.TTL+t.SWR:
			t.refresh(req, key)
			return entry.response(req), nil
		}
	}
	return t.fetch(req, key)
}

// Purge drops every cached response.
func (t *CachingTransport) Purge() {
	t.mu.Lock()
	t.entries = make(map[string]cachedResponse)
	t.gen++
	t.mu.Unlock()
}

func (t *CachingTransport) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *CachingTransport) refresh(req *http.Request, key string) {
	clone := req.Clone(context.Background())
	clone.Header.Del("If-None-Match")
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_, err, _ := t.group.Do(key, func() (any, error) {
			resp, err := t.fetch(clone, key)
			if err != nil {
				return nil, err
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, resp.Body.Close()
		})
		if err != nil {
			logger.Debug("CachingTransport: background refresh failed", "url", clone.URL.Path, "error", err)
		}
	}()
}

// wait blocks until background refreshes finish.
func (t *CachingTransport) wait() {
	t.wg.Wait()
}

func (t *CachingTransport) fetch(req *http.Request, key string) (*http.Response, error) {
	t.mu.RLock()
	gen := t.gen
	t.mu.RUnlock()

	resp, err := t.Base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK || t.TTL <= 0 {
		return resp, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	if len(body) > maxCachedBody {
		// Too large to keep: hand the caller the full stream uncached.
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return resp, nil
	}
	_ = resp.Body.Close()

	t.mu.Lock()
	if t.gen == gen {
		t.entries[key] = cachedResponse{
			status:    resp.StatusCode,
			header:    resp.Header.Clone(),
			body:      body,
			createdAt: t.now(),
		}
	} else {
		logger.Debug("CachingTransport: response predates a write, not cached", "url", req.URL.Path)
	}
	t.mu.Unlock()

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (e cachedResponse) response(req *http.Request) *http.Response {
	header := e.header.Clone()
	header.Set("X-Cache-Status", "HIT")
	status := e.status
	body := e.body
	if inm := req.Header.Get("If-None-Match"); inm != "" && inm == header.Get("ETag") {
		status = http.StatusNotModified
		body = nil
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// cacheKey separates users by hashing the Authorization header into the key.
func cacheKey(req *http.Request) string {
	key := req.Method + ":" + req.URL.String()
	if auth := req.Header.Get("Authorization"); auth != "" {
		sum := sha256.Sum256([]byte(auth))
		key += ":" + hex.EncodeToString(sum[:8])
	}
	return key
}
