package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"assistant-relay/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	betaHeader     = "assistants=v2"
	listPageLimit  = 100
	// Guards against a provider that keeps reporting has_more.
	maxListPages = 50
	// tokenFetchTimeout bounds a key lookup, which outlives the request
	// that triggered it.
	tokenFetchTimeout = 10 * time.Second
)

type createMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type createRunRequest struct {
	AssistantID string `json:"assistant_id"`
}

type messageList struct {
	Data    []domain.Message `json:"data"`
	FirstID string           `json:"first_id"`
	LastID  string           `json:"last_id"`
	HasMore bool             `json:"has_more"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the Assistants threads API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client that authenticates with the key produced by ts.
// The key is resolved on the first request and reused for the lifetime of
// the process; a failed lookup is retried on the next request.
func NewClient(ts TokenSource, opts ...Option) (*Client, error) {
	if ts == nil {
		return nil, errors.New("openai: token source must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     ts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
	defer cancel()
	key, err := c.tokens.Token(fetchCtx)
	if err != nil {
		return "", err
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// endpoint joins path onto the base URL, adding /v1 when the base lacks it.
func endpoint(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + path
}

func threadPath(threadID string, parts ...string) string {
	p := "/threads/" + url.PathEscape(threadID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// CreateThread starts an empty conversation.
func (c *Client) CreateThread(ctx context.Context) (domain.Thread, error) {
	var th domain.Thread
	if err := c.call(ctx, http.MethodPost, "/threads", struct{}{}, &th); err != nil {
		return domain.Thread{}, fmt.Errorf("openai: create thread: %w", err)
	}
	if th.ID == "" {
		return domain.Thread{}, errors.New("openai: create thread: empty thread id")
	}
	return th, nil
}

// AddMessage appends a user message to the thread.
func (c *Client) AddMessage(ctx context.Context, threadID, text string) (domain.Message, error) {
	if threadID == "" {
		return domain.Message{}, errors.New("openai: thread id must not be empty")
	}
	var msg domain.Message
	req := createMessageRequest{Role: domain.RoleUser, Content: text}
	if err := c.call(ctx, http.MethodPost, threadPath(threadID, "messages"), req, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("openai: add message: %w", err)
	}
	return msg, nil
}

// CreateRun asks the assistant to process the thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (domain.Run, error) {
	if threadID == "" {
		return domain.Run{}, errors.New("openai: thread id must not be empty")
	}
	if assistantID == "" {
		return domain.Run{}, errors.New("openai: assistant id must not be empty")
	}
	var run domain.Run
	if err := c.call(ctx, http.MethodPost, threadPath(threadID, "runs"), createRunRequest{AssistantID: assistantID}, &run); err != nil {
		return domain.Run{}, fmt.Errorf("openai: create run: %w", err)
	}
	if run.ID == "" {
		return domain.Run{}, errors.New("openai: create run: empty run id")
	}
	return run, nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	var run domain.Run
	if err := c.call(ctx, http.MethodGet, threadPath(threadID, "runs", runID), nil, &run); err != nil {
		return domain.Run{}, fmt.Errorf("openai: get run: %w", err)
	}
	return run, nil
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	var run domain.Run
	if err := c.call(ctx, http.MethodPost, threadPath(threadID, "runs", runID, "cancel"), struct{}{}, &run); err != nil {
		return domain.Run{}, fmt.Errorf("openai: cancel run: %w", err)
	}
	return run, nil
}

// ListMessages returns every message of the thread, newest first. A thread
// longer than maxListPages pages is an error rather than a truncated list.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	var (
		out   []domain.Message
		after string
	)
	for page := 0; page < maxListPages; page++ {
		q := url.Values{}
		q.Set("order", "desc")
		q.Set("limit", strconv.Itoa(listPageLimit))
		if after != "" {
			q.Set("after", after)
		}
		var list messageList
		if err := c.call(ctx, http.MethodGet, threadPath(threadID, "messages")+"?"+q.Encode(), nil, &list); err != nil {
			return nil, fmt.Errorf("openai: list messages: %w", err)
		}
		out = append(out, list.Data...)
		if !list.HasMore || list.LastID == "" {
			return out, nil
		}
		after = list.LastID
	}
	return nil, fmt.Errorf("openai: list messages: thread has more than %d messages", maxListPages*listPageLimit)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	u := endpoint(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)

	raw, err := c.doJSONRequest(req, u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, endpointURL string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpointURL,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
