// Package api is the request/response client for the collaborator backend.
// All response-shape quirks of the upstream contract are absorbed here, at the
// boundary, so the sync core only ever sees canonical types.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"tradewind/config"
	"tradewind/internal/models"

	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg *config.APIConfig, identityToken string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   identityToken,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     logger.Named("api"),
	}
}

// FetchUnreadMessageCount returns the server's authoritative unread message
// count. The upstream has been observed returning the count at several
// nesting depths; decodeCount handles all of them in this one place.
func (c *Client) FetchUnreadMessageCount(ctx context.Context) (int, error) {
	body, err := c.get(ctx, "/api/v1/unread-count", nil)
	if err != nil {
		return 0, err
	}
	return decodeCount(body)
}

func (c *Client) FetchConversations(ctx context.Context) ([]models.Conversation, error) {
	body, err := c.get(ctx, "/api/v1/conversations", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return resp.Conversations, nil
}

// FetchMessages returns one ascending page of messages for a conversation.
// before, when set, is the message id to paginate backwards from.
func (c *Client) FetchMessages(ctx context.Context, conversationID, before string, limit int) ([]models.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}
	body, err := c.get(ctx, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/messages", q)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return resp.Messages, nil
}

func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	_, err := c.post(ctx, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/read", nil)
	return err
}

func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (*models.Message, error) {
	payload := map[string]string{"text": text}
	body, err := c.post(ctx, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/messages", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Message models.Message `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &resp.Message, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("request failed",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

// decodeCount accepts the three count shapes the upstream has been seen
// producing: {"count":n}, {"data":{"count":n}} and a bare number.
func decodeCount(body []byte) (int, error) {
	var flat struct {
		Count *int `json:"count"`
		Data  *struct {
			Count *int `json:"count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		if flat.Count != nil {
			return *flat.Count, nil
		}
		if flat.Data != nil && flat.Data.Count != nil {
			return *flat.Data.Count, nil
		}
	}
	var bare int
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	return 0, fmt.Errorf("unrecognized count response: %s", body)
}
