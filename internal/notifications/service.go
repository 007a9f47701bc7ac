package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vidresolve/internal/config"
	"vidresolve/internal/reconcile"
)

// Service is what the daemon and the test-notify command publish through.
type Service interface {
	NotifyReconcileCompleted(ctx context.Context, trigger string, summary reconcile.Summary) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
	Enabled() bool
}

// NewService returns an ntfy-backed Service, or one that does nothing when
// notifications.ntfy_topic is unset.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return disabled{}
	}
	timeout := cfg.NtfyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfy{publisher: publisher{
		topicURL: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
	}}
}

type ntfy struct {
	publisher publisher
}

func (n *ntfy) Enabled() bool { return true }

// NotifyReconcileCompleted announces passes that patched or failed records.
// A pass that changed nothing publishes nothing.
func (n *ntfy) NotifyReconcileCompleted(ctx context.Context, trigger string, s reconcile.Summary) error {
	if s.Patched == 0 && s.Failed == 0 {
		return nil
	}
	if trigger = strings.TrimSpace(trigger); trigger == "" {
		trigger = "manual"
	}
	m := message{
		title: "vidresolve - Reconcile Complete",
		body: fmt.Sprintf("Reconciled %d records (%s): %d patched, %d deferred, %d malformed, %d failed in %s",
			s.Scanned, trigger, s.Patched, s.Deferred, s.Malformed, s.Failed, s.Duration.Round(time.Second)),
		tags: []string{"vidresolve", "reconcile", "completed"},
	}
	if s.Failed > 0 {
		m.tags[2] = "warning"
		m.priority = "high"
	}
	return n.publisher.publish(ctx, m)
}

func (n *ntfy) NotifyError(ctx context.Context, err error, during string) error {
	body := "Error"
	if during = strings.TrimSpace(during); during != "" {
		body += " during " + during
	}
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	return n.publisher.publish(ctx, message{
		title:    "vidresolve - Error",
		body:     body + ": " + reason,
		tags:     []string{"vidresolve", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfy) TestNotification(ctx context.Context) error {
	return n.publisher.publish(ctx, message{
		title:    "vidresolve - Test",
		body:     "Notification system test",
		tags:     []string{"vidresolve", "test"},
		priority: "low",
	})
}

type disabled struct{}

func (disabled) Enabled() bool                                                             { return false }
func (disabled) NotifyReconcileCompleted(context.Context, string, reconcile.Summary) error { return nil }
func (disabled) NotifyError(context.Context, error, string) error                          { return nil }
func (disabled) TestNotification(context.Context) error                                    { return nil }
