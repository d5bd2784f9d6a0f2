// Package notify pushes short status messages to the operator's phone.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// IconURL is shown next to every push.
	IconURL = "https://comik-icon.aoramd.moe/icon.png"
	// Group collects pushes under one heading on the device.
	Group = "Comik"
)

// Notifier delivers a titled message.
type Notifier interface {
	Notify(ctx context.Context, title, content string) error
}

// New returns a Bark notifier for baseURL, or a no-op notifier when
// baseURL is empty.
func New(baseURL string, logger *slog.Logger) Notifier {
	if strings.TrimSpace(baseURL) == "" {
		return Nop{}
	}
	return NewBark(baseURL, logger)
}

// Nop discards every message.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string, string) error { return nil }

// Bark sends pushes through a Bark server: GET {base}/{title}/{content}.
type Bark struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBark creates a notifier for the device URL base, e.g.
// https://api.day.app/<device key>.
func NewBark(baseURL string, logger *slog.Logger) *Bark {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bark{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// URL builds the request URL for one push.
func (b *Bark) URL(title, content string) string {
	query := url.Values{}
	query.Set("icon", IconURL)
	query.Set("group", Group)
	return fmt.Sprintf("%s/%s/%s?%s", b.baseURL, url.PathEscape(title), url.PathEscape(content), query.Encode())
}

// Notify implements Notifier.
func (b *Bark) Notify(ctx context.Context, title, content string) error {
	target := b.URL(title, content)
	b.logger.Debug("[Bark] request", slog.String("url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
