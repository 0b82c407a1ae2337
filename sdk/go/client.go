package creditlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal CreditLine HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID uses the legacy X-Actor-Id header; for development setups only.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Dossier represents the API dossier model.
type Dossier struct {
	Reference      string `json:"reference"`
	ClientID       string `json:"client_id"`
	Product        string `json:"product"`
	Amount         int64  `json:"amount"`
	DurationMonths int    `json:"duration_months"`
	AgentStatus    string `json:"agent_status"`
	ClientStatus   string `json:"client_status"`
	Archived       bool   `json:"archived"`
	SubmittedAt    string `json:"submitted_at"`
	UpdatedAt      string `json:"updated_at"`
}

// JournalEntry is one line of a dossier's audit trail.
type JournalEntry struct {
	ID         int64          `json:"id"`
	Reference  string         `json:"reference"`
	Kind       string         `json:"kind"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status"`
	ActorID    string         `json:"actor_id"`
	Comment    string         `json:"comment,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// TransitionOutcome is the result of a committed workflow action.
type TransitionOutcome struct {
	Dossier  Dossier      `json:"dossier"`
	Entry    JournalEntry `json:"entry"`
	Notified int          `json:"notified"`
}

// Notification is one in-app notification.
type Notification struct {
	ID        int64  `json:"id"`
	ActorID   string `json:"actor_id"`
	Reference string `json:"reference,omitempty"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	ReadAt    string `json:"read_at,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateDossier submits a credit application.
func (c *Client) CreateDossier(ctx context.Context, product string, amount int64, durationMonths int) (Dossier, error) {
	body := map[string]any{
		"product":         product,
		"amount":          amount,
		"duration_months": durationMonths,
	}
	var resp Dossier
	err := c.do(ctx, http.MethodPost, "v1/dossiers", body, &resp)
	return resp, err
}

// GetDossier fetches one dossier by reference.
func (c *Client) GetDossier(ctx context.Context, reference string) (Dossier, error) {
	var resp Dossier
	err := c.do(ctx, http.MethodGet, "v1/dossiers/"+url.PathEscape(reference), nil, &resp)
	return resp, err
}

// ListDossiers returns a page of dossiers.
func (c *Client) ListDossiers(ctx context.Context, clientID, status, after string, limit int) ([]Dossier, string, error) {
	q := url.Values{}
	if clientID != "" {
		q.Set("client_id", clientID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "v1/dossiers"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Dossiers  []Dossier `json:"dossiers"`
		NextAfter string    `json:"next_after"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Dossiers, resp.NextAfter, err
}

// Apply runs one workflow action against a dossier.
func (c *Client) Apply(ctx context.Context, reference, action, comment string) (TransitionOutcome, error) {
	body := map[string]any{"action": action}
	if comment != "" {
		body["comment"] = comment
	}
	var resp TransitionOutcome
	endpoint := fmt.Sprintf("v1/dossiers/%s/actions", url.PathEscape(reference))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Journal returns the audit trail for a dossier, oldest first.
func (c *Client) Journal(ctx context.Context, reference string) ([]JournalEntry, error) {
	var resp struct {
		Entries []JournalEntry `json:"entries"`
	}
	endpoint := fmt.Sprintf("v1/dossiers/%s/journal", url.PathEscape(reference))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Entries, err
}

// Notifications returns the caller's notifications, newest first.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	endpoint := "v1/notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Notifications, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	endpoint := fmt.Sprintf("v1/notifications/%d/read", id)
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
