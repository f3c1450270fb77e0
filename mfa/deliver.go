package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Message is one code dispatch.
type Message struct {
	UserID      string    `json:"user_id"`
	Channel     string    `json:"channel"`
	Destination string    `json:"destination"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Deliverer sends a code to the user over a channel such as "sms" or "email".
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogDeliverer writes codes to a logger. Development only.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver logs msg including the code.
func (d LogDeliverer) Deliver(ctx context.Context, msg Message) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "otp issued",
		"user_id", msg.UserID,
		"channel", msg.Channel,
		"destination", msg.Destination,
		"code", msg.Code,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}

// WebhookDeliverer posts Message as JSON to a notification service that owns
// the SMS and email providers.
type WebhookDeliverer struct {
	URL    string
	Token  string
	Client *http.Client
}

// Deliver performs one POST and treats any non-2xx status as failure.
func (d WebhookDeliverer) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification service status %d", resp.StatusCode)
	}
	return nil
}
