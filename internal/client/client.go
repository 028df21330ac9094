// Package client is the typed HTTP client the sync layer uses to read from the API.
package client

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

// APIError is a non-2xx response decoded from the API's {"code","error"} body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// SetToken sets the bearer access token sent on every request.
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

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) Session(ctx context.Context) (SessionInfo, error) {
	var out SessionInfo
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &out)
	return out, err
}

// Refresh rotates the refresh token and installs the new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/api/session/refresh", map[string]string{"refreshToken": refreshToken}, &out); err != nil {
		return Tokens{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// CheckField asks the API whether a username or email is well formed and available.
func (c *Client) CheckField(ctx context.Context, field, value string) (FieldCheck, error) {
	query := url.Values{}
	query.Set("field", field)
	query.Set("value", value)
	var out FieldCheck
	err := c.do(ctx, http.MethodGet, "/api/users/check?"+query.Encode(), nil, &out)
	return out, err
}

// Users returns every user ordered by credits, highest first.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &out); err != nil {
		return nil, err
	}
	if err := validateAll(out.Users); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) SpaceCounts(ctx context.Context, spaceIDs []string) ([]SpaceCount, error) {
	if len(spaceIDs) == 0 {
		return []SpaceCount{}, nil
	}
	var out struct {
		Counts []SpaceCount `json:"counts"`
	}
	path := "/api/spaces/counts?ids=" + url.QueryEscape(strings.Join(spaceIDs, ","))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if err := validateAll(out.Counts); err != nil {
		return nil, err
	}
	return out.Counts, nil
}

func (c *Client) Posts(ctx context.Context, spaceID string, limit int) ([]Post, error) {
	var out struct {
		Posts []Post `json:"posts"`
	}
	path := "/api/spaces/" + url.PathEscape(spaceID) + "/posts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if err := validateAll(out.Posts); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (c *Client) Chats(ctx context.Context) ([]Chat, error) {
	var out struct {
		Chats []Chat `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &out); err != nil {
		return nil, err
	}
	if err := validateAll(out.Chats); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// Messages returns a chat's messages, oldest first.
func (c *Client) Messages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	path := "/api/chats/" + url.PathEscape(chatID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if err := validateAll(out.Messages); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID, body string) (Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/messages", map[string]string{"body": body}, &out); err != nil {
		return Message{}, err
	}
	return out, out.Validate()
}

func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/read", nil, nil)
}

// TrackPresence marks the caller online on channel and returns the channel's members.
func (c *Client) TrackPresence(ctx context.Context, channel string) (PresenceSnapshot, error) {
	return c.presence(ctx, http.MethodPost, channel)
}

func (c *Client) UntrackPresence(ctx context.Context, channel string) (PresenceSnapshot, error) {
	return c.presence(ctx, http.MethodDelete, channel)
}

func (c *Client) Presence(ctx context.Context, channel string) (PresenceSnapshot, error) {
	return c.presence(ctx, http.MethodGet, channel)
}

func (c *Client) presence(ctx context.Context, method, channel string) (PresenceSnapshot, error) {
	var out PresenceSnapshot
	if err := c.do(ctx, method, "/api/presence/"+url.PathEscape(channel), nil, &out); err != nil {
		return PresenceSnapshot{}, err
	}
	if err := out.Validate(); err != nil {
		return PresenceSnapshot{}, err
	}
	return out, nil
}
