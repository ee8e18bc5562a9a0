// Package webhook delivers ledger events as JSON POST requests.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

// Config options for the webhook sink
type Config struct {
	URL          string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	Logger       *slog.Logger // nil disables retry logging
}

// Sink posts every event to a fixed URL, retrying connection errors and
// 5xx responses with backoff.
type Sink struct {
	client *retryablehttp.Client
	url    string
}

// New creates a webhook sink
func New(config Config) (*Sink, error) {
	if config.URL == "" {
		return nil, errors.New("webhook url is required")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	if config.RetryMax > 0 {
		client.RetryMax = config.RetryMax
	}
	if config.RetryWaitMin > 0 {
		client.RetryWaitMin = config.RetryWaitMin
	}
	if config.RetryWaitMax > 0 {
		client.RetryWaitMax = config.RetryWaitMax
	}
	if config.Timeout > 0 {
		client.HTTPClient.Timeout = config.Timeout
	}
	if config.Logger != nil {
		// slog.Logger satisfies retryablehttp.LeveledLogger
		client.Logger = config.Logger
	}

	return &Sink{client: client, url: config.URL}, nil
}

// Publish posts the event. Any response outside 2xx is an error.
func (s *Sink) Publish(ctx context.Context, event contentledger.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ledger-Event", string(event.Kind))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
