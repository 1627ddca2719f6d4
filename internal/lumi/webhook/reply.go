package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultMessagingBase = "https://api.line.me"
	replyPath            = "/v2/bot/message/reply"
	replyTimeout         = 10 * time.Second
)

// ReplyClient delivers replies through the Messaging API reply endpoint.
// Reply tokens are single-use and short-lived, so there is no retry
// here: a failed reply is logged by the caller and the turn is over.
type ReplyClient struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

// NewReplyClient creates a ReplyClient. baseURL overrides the API host
// for tests; empty means the production endpoint.
func NewReplyClient(accessToken, baseURL string) *ReplyClient {
	if baseURL == "" {
		baseURL = defaultMessagingBase
	}
	return &ReplyClient{
		baseURL:     baseURL,
		accessToken: accessToken,
		client:      &http.Client{Timeout: replyTimeout},
	}
}

// --- wire types for the reply request ---

type replyRequest struct {
	ReplyToken string         `json:"replyToken"`
	Messages   []replyMessage `json:"messages"`
}

type replyMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply sends text as a single text message for the given reply token.
func (c *ReplyClient) Reply(ctx context.Context, replyToken, text string) error {
	body := replyRequest{
		ReplyToken: replyToken,
		Messages:   []replyMessage{{Type: "text", Text: text}},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+replyPath, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook: build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: reply http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook: reply rejected (HTTP %d): %s", resp.StatusCode, detail)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Compile-time interface satisfaction check.
var _ Replier = (*ReplyClient)(nil)
