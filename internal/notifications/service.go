package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coursedrop/internal/config"
)

const userAgent = "coursedrop/0.1.0"

// Service defines the notification surface exposed to the upload pipeline.
type Service interface {
	NotifyPlaced(ctx context.Context, filename, destination string) error
	NotifyRejected(ctx context.Context, filename, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		placed:   cfg.Notifications.Placed,
		rejected: cfg.Notifications.Rejected,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	placed   bool
	rejected bool
}

func (n *ntfyService) NotifyPlaced(ctx context.Context, filename, destination string) error {
	if !n.placed {
		return nil
	}
	message := fmt.Sprintf("📥 Filed: %s", strings.TrimSpace(filename))
	if destination = strings.TrimSpace(destination); destination != "" {
		message = fmt.Sprintf("%s\nTo: %s", message, destination)
	}
	return n.send(ctx, payload{
		title:   "Coursedrop - Placed",
		message: message,
		tags:    []string{"coursedrop", "upload", "placed"},
	})
}

func (n *ntfyService) NotifyRejected(ctx context.Context, filename, reason string) error {
	if !n.rejected {
		return nil
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "(no filename)"
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return n.send(ctx, payload{
		title:    "Coursedrop - Rejected",
		message:  fmt.Sprintf("⚠️ Not filed: %s\n%s", filename, reason),
		tags:     []string{"coursedrop", "upload", "rejected"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Coursedrop - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"coursedrop", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPlaced(context.Context, string, string) error   { return nil }
func (noopService) NotifyRejected(context.Context, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
