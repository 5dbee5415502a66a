package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"gigline/internal/config"
	"gigline/internal/domain"
	"gigline/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher pushes persisted notification records to configured
// endpoints. Each hook keeps its own cursor over the notifications table, so
// a slow endpoint never blocks the others. Cursors are persisted per hook
// URL; delivery is at-least-once, since a crash between a successful POST
// and the cursor write replays that one record.
type webhookDispatcher struct {
	repo     repo.Repo
	webhooks []config.WebhookConfig
	client   *http.Client
}

// StartWebhooks launches the push consumer for the configured hooks and
// returns a stop function that blocks until the consumer goroutine exits.
// With no hooks configured the stop function is a no-op.
func StartWebhooks(r repo.Repo, hooks []config.WebhookConfig) (stop func()) {
	if len(hooks) == 0 {
		return func() {}
	}
	d := &webhookDispatcher{
		repo:     r,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for _, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, hook config.WebhookConfig) {
	cursor, err := d.repo.GetWebhookCursor(ctx, hook.URL)
	if err != nil {
		log.Printf("webhook: read cursor for %s failed: %v", hook.URL, err)
		return
	}
	records, err := d.repo.NotificationsAfter(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		log.Printf("webhook: fetch notifications failed: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	filter := newCategoryFilter(hook.Categories)
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		if filter.match(string(rec.Notification.Category)) {
			if err := d.postNotification(ctx, hook, rec.Notification); err != nil {
				log.Printf("webhook: deliver to %s failed: %v", hook.URL, err)
				return
			}
		}
		d.advanceCursor(ctx, hook.URL, rec.Cursor)
	}
}

func (d *webhookDispatcher) advanceCursor(ctx context.Context, hookURL string, cursor int64) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := d.repo.SetWebhookCursor(ctx, hookURL, cursor, now); err != nil {
		log.Printf("webhook: persist cursor for %s failed: %v", hookURL, err)
	}
}

type webhookNotification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Category  string            `json:"category"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

func (d *webhookDispatcher) postNotification(ctx context.Context, hook config.WebhookConfig, n domain.Notification) error {
	data, err := json.Marshal(webhookNotification{
		ID:        n.ID,
		UserID:    n.UserID,
		Category:  string(n.Category),
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gigline-Category", string(n.Category))
	req.Header.Set("X-Gigline-Delivery", n.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Gigline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type categoryFilter struct {
	all bool
	set map[string]struct{}
}

func newCategoryFilter(categories []string) categoryFilter {
	if len(categories) == 0 {
		return categoryFilter{all: true}
	}
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		key := strings.TrimSpace(c)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return categoryFilter{all: true}
	}
	return categoryFilter{set: set}
}

func (f categoryFilter) match(category string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[category]
	return ok
}
