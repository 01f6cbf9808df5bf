// Package line is the messaging transport: a thin client for the LINE
// Messaging API and the signed webhook receiver.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const apiBase = "https://api.line.me/v2/bot"

// StatusError is a non-2xx answer from the messaging API. 4xx answers (an
// invalid user, a revoked token) will not get better on retry; 429 and 5xx
// might.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("line api: status %d: %s", e.Code, e.Body)
}

// Permanent reports whether retrying the same request is pointless.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

type Client struct {
	channelToken string
	baseURL      string
	http         *http.Client
}

func NewClient(channelToken string) *Client {
	return &Client{
		channelToken: channelToken,
		baseURL:      apiBase,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply answers a webhook event synchronously via its one-shot reply token.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	body := map[string]any{
		"replyToken": replyToken,
		"messages":   []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/message/reply", body, "")
}

// Push sends an asynchronous message (scheduler-originated). The retry key
// makes a resend after a network failure idempotent on LINE's side.
func (c *Client) Push(ctx context.Context, userID, text string) error {
	body := map[string]any{
		"to":       userID,
		"messages": []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/message/push", body, uuid.NewString())
}

func (c *Client) post(ctx context.Context, path string, payload any, retryKey string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)
	if retryKey != "" {
		req.Header.Set("X-Line-Retry-Key", retryKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
