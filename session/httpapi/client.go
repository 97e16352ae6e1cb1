// Package httpapi implements core.MessageStore against the chat-session
// REST API of the agent backend.
package httpapi

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
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
	"github.com/moonshubh/Agent-Sparrow-sub001/session"
)

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	// Header is added to every request, e.g. an Authorization header.
	Header http.Header
	// PageSize is the page length used by ListAll.
	PageSize int
	// Concurrency bounds parallel page fetches in ListAll.
	Concurrency int
	Logger      logging.Logger
}

// Client talks to {base}/api/v1/chat-sessions. It is safe for concurrent
// use.
type Client struct {
	base        string
	http        *http.Client
	header      http.Header
	pageSize    int
	concurrency int
	logger      logging.Logger
}

var _ core.MessageStore = (*Client)(nil)

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, optFns ...func(o *Options)) *Client {
	opts := Options{
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Header:      http.Header{},
		PageSize:    100,
		Concurrency: 4,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	return &Client{
		base:        strings.TrimRight(baseURL, "/"),
		http:        opts.HTTPClient,
		header:      opts.Header,
		pageSize:    opts.PageSize,
		concurrency: opts.Concurrency,
		logger:      logging.OrNoOp(opts.Logger),
	}
}

// PostMessage creates a message.
func (c *Client) PostMessage(ctx context.Context, sessionID string, req core.PostMessageRequest) (core.PostMessageResponse, error) {
	if sessionID == "" {
		return core.PostMessageResponse{}, session.ErrInvalidSession
	}
	body, err := c.do(ctx, http.MethodPost, c.messagesURL(sessionID), req)
	if err != nil {
		return core.PostMessageResponse{}, fmt.Errorf("post message: %w", err)
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return core.PostMessageResponse{}, fmt.Errorf("post message: response carries no id")
	}
	return core.PostMessageResponse{ID: id}, nil
}

// UpdateMessage patches a message.
func (c *Client) UpdateMessage(ctx context.Context, sessionID, messageID string, req core.UpdateMessageRequest) error {
	u := c.messagesURL(sessionID) + "/" + url.PathEscape(messageID)
	if _, err := c.do(ctx, http.MethodPut, u, req); err != nil {
		return fmt.Errorf("update message %s: %w", messageID, err)
	}
	return nil
}

// ListMessages fetches one page.
func (c *Client) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]core.StoredMessage, error) {
	msgs, _, err := c.list(ctx, sessionID, limit, offset)
	return msgs, err
}

// ListAll fetches a whole session. The first page reports the total; the
// remaining pages are fetched concurrently and stitched in order.
func (c *Client) ListAll(ctx context.Context, sessionID string) ([]core.StoredMessage, error) {
	first, total, err := c.list(ctx, sessionID, c.pageSize, 0)
	if err != nil {
		return nil, err
	}
	if total <= len(first) || len(first) < c.pageSize {
		return first, nil
	}

	pages := (total - 1) / c.pageSize
	results := make([][]core.StoredMessage, pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range pages {
		offset := (i + 1) * c.pageSize
		g.Go(func() error {
			msgs, _, err := c.list(gctx, sessionID, c.pageSize, offset)
			if err != nil {
				return err
			}
			results[i] = msgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := first
	for _, page := range results {
		out = append(out, page...)
	}
	c.logger.Debug("listed session", "session_id", sessionID, "messages", len(out), "pages", pages+1)
	return out, nil
}

func (c *Client) list(ctx context.Context, sessionID string, limit, offset int) ([]core.StoredMessage, int, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	u := c.messagesURL(sessionID)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	return decodeList(body, sessionID)
}

// decodeList accepts a bare array or an object with "items" or "messages".
// IDs may be numbers.
func decodeList(body []byte, sessionID string) ([]core.StoredMessage, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, fmt.Errorf("list messages: invalid JSON response")
	}
	root := gjson.ParseBytes(body)
	items := root
	if !root.IsArray() {
		items = root.Get("items")
		if !items.Exists() {
			items = root.Get("messages")
		}
	}

	out := []core.StoredMessage{}
	items.ForEach(func(_, item gjson.Result) bool {
		m := core.StoredMessage{
			ID:          item.Get("id").String(),
			SessionID:   item.Get("session_id").String(),
			MessageType: item.Get("message_type").String(),
			Content:     item.Get("content").String(),
			AgentType:   item.Get("agent_type").String(),
		}
		if m.SessionID == "" {
			m.SessionID = sessionID
		}
		if meta, ok := item.Get("metadata").Value().(map[string]any); ok {
			m.Metadata = meta
		}
		if ts := item.Get("created_at").String(); ts != "" {
			m.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
		out = append(out, m)
		return true
	})

	total := len(out)
	if t := root.Get("total"); t.Exists() {
		total = int(t.Int())
	}
	return out, total, nil
}

func (c *Client) messagesURL(sessionID string) string {
	return c.base + "/api/v1/chat-sessions/" + url.PathEscape(sessionID) + "/messages"
}

func (c *Client) do(ctx context.Context, method, u string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, session.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &protocol.HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(truncate(data, 4096)))}
	}
	return data, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
