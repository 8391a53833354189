package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"habitTrackerAPI/internal/friend"
	"habitTrackerAPI/internal/habit"
	"habitTrackerAPI/internal/user"
)

// Client talks to the habit HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string

	mu    sync.RWMutex
	token string
}

const (
	defaultBaseURL   = "http://127.0.0.1:3333"
	defaultUserAgent = "habitctl/0.1"
	requestTimeout   = 15 * time.Second
	maxErrorBody     = 64 << 10
)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTransport swaps the round tripper of the default HTTP client.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.http.Transport = rt
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient builds a Client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Register creates an account and stores the returned session token.
func (c *Client) Register(ctx context.Context, req user.RegisterRequest) (user.AuthResponse, error) {
	var payload user.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &payload); err != nil {
		return user.AuthResponse{}, err
	}
	c.SetToken(payload.Token)
	return payload, nil
}

// Login exchanges credentials for a session token and stores it.
func (c *Client) Login(ctx context.Context, req user.LoginRequest) (user.AuthResponse, error) {
	var payload user.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &payload); err != nil {
		return user.AuthResponse{}, err
	}
	c.SetToken(payload.Token)
	return payload, nil
}

func (c *Client) Me(ctx context.Context) (user.User, error) {
	var payload user.User
	if err := c.do(ctx, http.MethodGet, "/api/user", nil, &payload); err != nil {
		return user.User{}, err
	}
	return payload, nil
}

// ListHabits fetches the caller's active habits. When etag still matches,
// notModified is true and habits is nil.
func (c *Client) ListHabits(ctx context.Context, etag string) (habits []habit.Habit, newETag string, notModified bool, err error) {
	newETag, notModified, err = c.conditional(ctx, "/api/habits", etag, &habits)
	return habits, newETag, notModified, err
}

func (c *Client) ListEntries(ctx context.Context, etag string) (entries []habit.Entry, newETag string, notModified bool, err error) {
	newETag, notModified, err = c.conditional(ctx, "/api/habits/entries", etag, &entries)
	return entries, newETag, notModified, err
}

func (c *Client) ListHabitEntries(ctx context.Context, habitID, etag string) (entries []habit.Entry, newETag string, notModified bool, err error) {
	if habitID == "" {
		return nil, "", false, fmt.Errorf("%w: habit id required", ErrValidation)
	}
	path := "/api/habits/" + url.PathEscape(habitID) + "/entries"
	newETag, notModified, err = c.conditional(ctx, path, etag, &entries)
	return entries, newETag, notModified, err
}

func (c *Client) Dashboard(ctx context.Context, etag string) (dash habit.Dashboard, newETag string, notModified bool, err error) {
	newETag, notModified, err = c.conditional(ctx, "/api/dashboard-data", etag, &dash)
	return dash, newETag, notModified, err
}

func (c *Client) CreateHabit(ctx context.Context, req habit.CreateHabitRequest) (habit.Habit, error) {
	var payload habit.Habit
	if err := c.do(ctx, http.MethodPost, "/api/habits", req, &payload); err != nil {
		return habit.Habit{}, err
	}
	return payload, nil
}

func (c *Client) UpdateHabit(ctx context.Context, id string, req habit.UpdateHabitRequest) (habit.Habit, error) {
	var payload habit.Habit
	if err := c.do(ctx, http.MethodPut, "/api/habits/"+url.PathEscape(id), req, &payload); err != nil {
		return habit.Habit{}, err
	}
	return payload, nil
}

func (c *Client) DeleteHabit(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/habits/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ToggleEntry(ctx context.Context, habitID string, req habit.ToggleEntryRequest) (habit.Entry, error) {
	var payload habit.Entry
	path := "/api/habits/" + url.PathEscape(habitID) + "/entries"
	if err := c.do(ctx, http.MethodPost, path, req, &payload); err != nil {
		return habit.Entry{}, err
	}
	return payload, nil
}

func (c *Client) ListFriends(ctx context.Context) ([]friend.Connection, error) {
	var payload []friend.Connection
	if err := c.do(ctx, http.MethodGet, "/api/friends", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FriendRequests lists pending requests addressed to the caller.
func (c *Client) FriendRequests(ctx context.Context) ([]friend.Connection, error) {
	var payload []friend.Connection
	if err := c.do(ctx, http.MethodGet, "/api/friends/requests", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) AddFriend(ctx context.Context, shareCode string) (friend.Connection, error) {
	var payload friend.Connection
	req := friend.AddFriendRequest{ShareCode: shareCode}
	if err := c.do(ctx, http.MethodPost, "/api/friends", req, &payload); err != nil {
		return friend.Connection{}, err
	}
	return payload, nil
}

func (c *Client) RespondFriend(ctx context.Context, id string, action friend.Action) error {
	req := friend.RespondRequest{Action: action}
	return c.do(ctx, http.MethodPut, "/api/friends/"+url.PathEscape(id), req, nil)
}

func (c *Client) RemoveFriend(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/friends/"+url.PathEscape(id), nil, nil)
}

// RegisterDevice stores a push token for the caller.
func (c *Client) RegisterDevice(ctx context.Context, token, platform string) error {
	req := map[string]string{"token": token, "platform": platform}
	return c.do(ctx, http.MethodPost, "/api/notifications/devices", req, nil)
}

type noCacheKey struct{}

// WithNoCache marks ctx so requests made with it skip any HTTP response cache.
func WithNoCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, noCacheKey{}, true)
}

func noCache(ctx context.Context) bool {
	v, _ := ctx.Value(noCacheKey{}).(bool)
	return v
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	resp, err := c.send(ctx, method, &url.URL{Path: path}, body, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decode(resp, dest)
}

func (c *Client) conditional(ctx context.Context, path, etag string, dest any) (string, bool, error) {
	resp, err := c.send(ctx, http.MethodGet, &url.URL{Path: path}, nil, etag)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotModified {
		return etag, true, nil
	}
	if err := decode(resp, dest); err != nil {
		return "", false, err
	}
	return resp.Header.Get("ETag"), false, nil
}

func (c *Client) send(ctx context.Context, method string, rel *url.URL, body any, etag string) (*http.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if noCache(ctx) {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", errors.Join(ErrUnavailable, err))
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, readAPIError(resp, rel.Path)
	}
	return resp, nil
}

func decode(resp *http.Response, dest any) error {
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response, path string) error {
	apiErr := &APIError{Status: resp.StatusCode, Path: path}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
