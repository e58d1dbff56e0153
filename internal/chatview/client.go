package chatview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type sendRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId,omitempty"`
}

// StatusError is a non-200 answer from the relay endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chatview: relay returned status %d: %s", e.StatusCode, e.Body)
}

// Client posts chat messages to the relay endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(url string, opts ...ClientOption) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("chatview: relay url must not be empty")
	}
	// The relay blocks while the assistant run is polled.
	c := &Client{url: url, httpClient: &http.Client{Timeout: 5 * time.Minute}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Send(ctx context.Context, message, threadID string) (Reply, error) {
	body, err := json.Marshal(sendRequest{Message: message, ThreadID: threadID})
	if err != nil {
		return Reply{}, fmt.Errorf("chatview: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("chatview: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("chatview: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Reply{}, &StatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}
	var reply Reply
	if err := json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("chatview: decode response: %w", err)
	}
	// A reply without a list must not wipe the transcript.
	if reply.Messages == nil {
		return Reply{}, errors.New("chatview: response has no messages")
	}
	return reply, nil
}
