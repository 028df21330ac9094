// Package push delivers notifications to devices through an Expo-compatible push API.
package push

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

const DefaultURL = "https://exp.host/--/api/v2/push/send"

// ErrDeliveryFailed wraps non-2xx responses and per-ticket errors from the push API.
var ErrDeliveryFailed = errors.New("push: delivery failed")

// Message is the payload posted for one device.
type Message struct {
	To    string         `json:"to"`
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

// Ticket is the push API's acknowledgement for one message.
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type Client struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewClient returns a client posting to url; token is sent as a bearer credential when set.
func NewClient(url, token string, httpClient *http.Client) *Client {
	if strings.TrimSpace(url) == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: url, token: strings.TrimSpace(token), httpClient: httpClient}
}

// Send posts msg and returns the ticket the push API issued for it.
func (c *Client) Send(ctx context.Context, msg Message) (Ticket, error) {
	if msg.Sound == "" {
		msg.Sound = "default"
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Ticket{}, fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Ticket{}, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ticket{}, fmt.Errorf("post push message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Ticket{}, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Ticket{}, fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Ticket{}, fmt.Errorf("decode push response: %w", err)
	}

	// A single message may be answered with a ticket object or a one-element array.
	var ticket Ticket
	if len(envelope.Data) > 0 && envelope.Data[0] == '[' {
		var tickets []Ticket
		if err := json.Unmarshal(envelope.Data, &tickets); err != nil {
			return Ticket{}, fmt.Errorf("decode push tickets: %w", err)
		}
		if len(tickets) > 0 {
			ticket = tickets[0]
		}
	} else if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &ticket); err != nil {
			return Ticket{}, fmt.Errorf("decode push ticket: %w", err)
		}
	}
	if ticket.Status == "error" {
		return ticket, fmt.Errorf("%w: %s", ErrDeliveryFailed, ticket.Message)
	}
	return ticket, nil
}
