// Package notify fires workout reminders and family-activity alerts on a
// wall-clock cadence and on polled feed changes. Rules are code-level
// configuration with process lifetime; delivery is polymorphic over local
// display and the push dispatch channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification is the payload handed to a Deliverer.
type Notification struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Tag   string    `json:"tag"`
	At    time.Time `json:"at"`
}

// NewNotification builds a Notification with a fresh id and timestamp.
func NewNotification(title, body, tag string) Notification {
	return Notification{
		ID:    uuid.NewString(),
		Title: title,
		Body:  body,
		Tag:   tag,
		At:    time.Now().UTC(),
	}
}

// Deliverer sends a notification over one transport. The scheduler does not
// care which.
type Deliverer interface {
	Deliver(ctx context.Context, notification Notification) error
}

// DisplayFunc renders a notification in-process, supplied by the UI shell.
type DisplayFunc func(Notification)

// LocalDeliverer displays notifications in-process.
type LocalDeliverer struct {
	display DisplayFunc
	logger  *log.Logger
}

// NewLocalDeliverer constructs a LocalDeliverer. A nil display falls back to
// logging only.
func NewLocalDeliverer(display DisplayFunc) *LocalDeliverer {
	return &LocalDeliverer{
		display: display,
		logger:  log.New(log.Writer(), "[notify] ", log.LstdFlags),
	}
}

// Deliver shows the notification locally. It never fails.
func (d *LocalDeliverer) Deliver(_ context.Context, notification Notification) error {
	if d.display != nil {
		d.display(notification)
	} else {
		d.logger.Printf("notification: %s - %s", notification.Title, notification.Body)
	}
	return nil
}

// PushDeliverer dispatches notifications through the server-side push channel
// using the subscription token obtained at initialization.
type PushDeliverer struct {
	client            *http.Client
	endpoint          string
	subscriptionToken string
}

// NewPushDeliverer constructs a PushDeliverer for the dispatch endpoint.
func NewPushDeliverer(endpoint, subscriptionToken string, timeout time.Duration) *PushDeliverer {
	return &PushDeliverer{
		client:            &http.Client{Timeout: timeout},
		endpoint:          strings.TrimRight(endpoint, "/"),
		subscriptionToken: subscriptionToken,
	}
}

// Deliver POSTs the notification to the dispatch channel.
func (d *PushDeliverer) Deliver(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(struct {
		Subscription string       `json:"subscription"`
		Notification Notification `json:"notification"`
	}{
		Subscription: d.subscriptionToken,
		Notification: notification,
	})
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", notification.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &DispatchError{Status: resp.StatusCode}
	}
	return nil
}

// DispatchError represents a non-successful push dispatch response.
type DispatchError struct {
	Status int
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("push dispatch failed with status %d", e.Status)
}
