// Package notify centralizes notification fan-out behind one interface with
// a fixed record schema and a closed category enum. Triggering components
// enqueue after their own transaction commits and never wait on delivery.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"gigline/internal/domain"
	"gigline/internal/fault"
	"gigline/internal/repo"
)

const insertTimeout = 5 * time.Second

// delivery is one recipient's pending record.
type delivery struct {
	recipient string
	category  domain.NotificationCategory
	title     string
	message   string
	metadata  map[string]string
}

type Dispatcher struct {
	Repo   repo.Repo
	Now    func() time.Time
	logger *log.Logger

	jobs    chan delivery
	pending sync.WaitGroup
	once    sync.Once
}

// New starts a dispatcher with the given worker pool.
func New(r repo.Repo, logger *log.Logger, workers, queueSize int) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		Repo:   r,
		Now:    time.Now,
		logger: logger,
		jobs:   make(chan delivery, queueSize),
	}
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch fans one event out to every recipient. Each record is enqueued
// independently; a full queue drops the delivery with a log line rather than
// blocking the caller.
func (d *Dispatcher) Dispatch(recipients []string, category domain.NotificationCategory, title, message string, metadata map[string]string) {
	if !domain.ValidCategory(category) {
		d.logger.Printf("notify: dropping dispatch with unknown category %q (title=%q)", category, title)
		return
	}
	for _, recipient := range recipients {
		if recipient == "" {
			continue
		}
		d.pending.Add(1)
		select {
		case d.jobs <- delivery{recipient: recipient, category: category, title: title, message: message, metadata: metadata}:
		default:
			d.pending.Done()
			d.logger.Printf("notify: queue full, dropping notification for %s (title=%q)", recipient, title)
		}
	}
}

func (d *Dispatcher) worker() {
	for job := range d.jobs {
		d.deliver(job)
		d.pending.Done()
	}
}

func (d *Dispatcher) deliver(job delivery) {
	// Detached context: the triggering request may already be gone.
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	n := domain.Notification{
		ID:        uuid.New().String(),
		UserID:    job.recipient,
		Category:  job.category,
		Title:     job.title,
		Message:   job.message,
		Metadata:  job.metadata,
		CreatedAt: d.Now().UTC().Format(time.RFC3339),
	}
	if err := d.Repo.InsertNotification(ctx, n); err != nil {
		d.logger.Printf("notify: insert for %s failed: %v", job.recipient, err)
	}
}

// Flush blocks until every enqueued delivery has been attempted. Used by
// tests and by shutdown.
func (d *Dispatcher) Flush() {
	d.pending.Wait()
}

// Close drains the queue and stops the workers.
func (d *Dispatcher) Close() {
	d.Flush()
	d.once.Do(func() { close(d.jobs) })
}

// List returns a recipient's non-deleted notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	return d.Repo.ListNotifications(ctx, userID, limit)
}

// MarkRead marks one notification read. Idempotent: re-marking an already
// read record is a no-op success.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, userID string) error {
	n, err := d.owned(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	return d.Repo.MarkNotificationRead(ctx, notificationID, d.Now().UTC().Format(time.RFC3339))
}

// MarkAllRead marks every unread record for the recipient.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) error {
	return d.Repo.MarkAllNotificationsRead(ctx, userID, d.Now().UTC().Format(time.RFC3339))
}

// MarkAllSeen clears the unseen badge without touching read state.
func (d *Dispatcher) MarkAllSeen(ctx context.Context, userID string) error {
	return d.Repo.MarkAllNotificationsSeen(ctx, userID)
}

// Counts aggregates over the recipient's non-deleted records.
func (d *Dispatcher) Counts(ctx context.Context, userID string) (domain.NotificationCounts, error) {
	return d.Repo.CountNotifications(ctx, userID)
}

// SoftDelete excludes the record from all subsequent listings and counts.
func (d *Dispatcher) SoftDelete(ctx context.Context, notificationID, userID string) error {
	if _, err := d.owned(ctx, notificationID, userID); err != nil {
		return err
	}
	return d.Repo.SoftDeleteNotification(ctx, notificationID)
}

// Sweep hard-deletes soft-deleted records and anything past retention.
func (d *Dispatcher) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := d.Now().UTC().Add(-retention).Format(time.RFC3339)
	return d.Repo.SweepNotifications(ctx, cutoff)
}

func (d *Dispatcher) owned(ctx context.Context, notificationID, userID string) (domain.Notification, error) {
	n, err := d.Repo.GetNotification(ctx, notificationID)
	if errors.Is(err, repo.ErrNotFound) {
		return n, fault.NotFoundError{Kind: "notification", ID: notificationID}
	}
	if err != nil {
		return n, fault.TransientError{Op: "load notification", Err: err}
	}
	if n.UserID != userID {
		return n, fault.ForbiddenError{Action: "modify notification " + notificationID, Reason: "not the recipient"}
	}
	return n, nil
}
