// Package remote implements the HTTP client surface of the offline core: per
// collection record pushes, exercise catalog fetches, family activity polling,
// and the raw fetch used by the router.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fitfriendsclub/khyrie-offline/auth"
	"github.com/fitfriendsclub/khyrie-offline/domain"
	"github.com/fitfriendsclub/khyrie-offline/router"
)

// collectionPaths maps each record collection to its push endpoint.
var collectionPaths = map[domain.Collection]string{
	domain.CollectionWorkouts: "/api/workouts",
	domain.CollectionProgress: "/api/progress",
}

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithToken supplies a static bearer token, taking precedence over the
// environment sources.
func WithToken(token string) Option {
	return func(c *Client) {
		c.staticToken = token
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.client = httpClient
	}
}

// Client talks to the Khyrie API.
type Client struct {
	client      *http.Client
	baseURL     string
	staticToken string
}

// NewClient constructs a Client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RejectionError carries the status of an explicit server-side rejection.
type RejectionError struct {
	Status int
	Body   string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("remote rejected with status %d: %s", e.Status, e.Body)
}

func (e *RejectionError) Unwrap() error {
	return domain.ErrRemoteRejected
}

// pushBody is the wire shape of a record push.
type pushBody struct {
	ClientRecordID int64           `json:"client_record_id"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PushRecord POSTs one record to its collection endpoint. Transport failures
// and 5xx responses map to ErrNetworkUnavailable (retried next pass); 4xx maps
// to ErrRemoteRejected. The record's idempotency key rides in a header so the
// server can deduplicate at-least-once delivery.
func (c *Client) PushRecord(ctx context.Context, collection domain.Collection, record domain.Record) error {
	path, ok := collectionPaths[collection]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCollection, collection)
	}

	body, err := json.Marshal(pushBody{
		ClientRecordID: record.ID,
		Payload:        record.Payload,
		CreatedAt:      record.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode record %d: %w", record.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", record.IdempotencyKey)
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: push %s record %d: %v", domain.ErrNetworkUnavailable, collection, record.ID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: push %s record %d: status %d", domain.ErrNetworkUnavailable, collection, record.ID, resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RejectionError{Status: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}
}

// FetchExercises retrieves the full exercise reference list for a catalog
// refresh.
func (c *Client) FetchExercises(ctx context.Context) ([]domain.ExerciseCatalogEntry, error) {
	var payload struct {
		Exercises []domain.ExerciseCatalogEntry `json:"exercises"`
	}
	if err := c.getJSON(ctx, "/api/exercises", &payload); err != nil {
		return nil, err
	}
	return payload.Exercises, nil
}

// ActivityItem is one family-feed entry used by the notification scheduler.
type ActivityItem struct {
	ID         string    `json:"id"`
	UserName   string    `json:"user_name"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FetchFamilyActivity returns family activity newer than since.
func (c *Client) FetchFamilyActivity(ctx context.Context, since time.Time) ([]ActivityItem, error) {
	path := "/api/family/activity"
	if !since.IsZero() {
		path += "?since=" + since.UTC().Format(time.RFC3339)
	}

	var payload struct {
		Items []ActivityItem `json:"items"`
	}
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// Fetch implements router.Fetcher over plain HTTP. A transport failure is an
// error; any HTTP response, error status included, is a response.
func (c *Client) Fetch(ctx context.Context, req router.ClassifiedRequest) (*router.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, err
	}
	if req.Kind == router.KindAPI {
		if err := c.authorize(httpReq); err != nil {
			return nil, err
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetworkUnavailable, err)
	}

	return &router.Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: get %s: %v", domain.ErrNetworkUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: get %s: status %d", domain.ErrNetworkUnavailable, path, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RejectionError{Status: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// authorize attaches the bearer token after checking it is still usable.
func (c *Client) authorize(req *http.Request) error {
	resolution, err := auth.ResolveToken(c.staticToken)
	if err != nil {
		// Anonymous mode: local-only installs run without a token.
		return nil
	}
	if err := auth.CheckUsable(resolution.Token, time.Now()); err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+resolution.Token)
	return nil
}
