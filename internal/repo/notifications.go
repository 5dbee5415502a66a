package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gigline/internal/domain"
)

const notificationColumns = `id,user_id,category,title,message,metadata_json,is_read,is_seen,is_deleted,created_at,read_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	var metadata, readAt sql.NullString
	err := row.Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Message, &metadata,
		&n.IsRead, &n.IsSeen, &n.IsDeleted, &n.CreatedAt, &readAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
			return n, fmt.Errorf("notification %s metadata: %w", n.ID, err)
		}
	}
	if readAt.Valid {
		n.ReadAt = &readAt.String
	}
	return n, nil
}

// InsertNotification writes one delivery record. Notification inserts are
// deliberately untransacted: each recipient's record is independent.
func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	var metadata any
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return err
		}
		metadata = string(b)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,user_id,category,title,message,metadata_json,is_read,is_seen,is_deleted,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Category, n.Title, n.Message, metadata, n.IsRead, n.IsSeen, n.IsDeleted, n.CreatedAt)
	return err
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	return scanNotification(r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id))
}

// ListNotifications returns a recipient's non-deleted records, newest first.
func (r Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=? AND is_deleted=0 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id, readAt string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1, is_seen=1, read_at=COALESCE(read_at, ?) WHERE id=?`, readAt, id)
	return err
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID, readAt string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE notifications SET is_read=1, is_seen=1, read_at=COALESCE(read_at, ?) WHERE user_id=? AND is_deleted=0 AND is_read=0`,
		readAt, userID)
	return err
}

func (r Repo) MarkAllNotificationsSeen(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_seen=1 WHERE user_id=? AND is_deleted=0 AND is_seen=0`, userID)
	return err
}

func (r Repo) SoftDeleteNotification(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_deleted=1 WHERE id=?`, id)
	return err
}

func (r Repo) CountNotifications(ctx context.Context, userID string) (domain.NotificationCounts, error) {
	var c domain.NotificationCounts
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*),
COALESCE(SUM(CASE WHEN is_read=0 THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN is_seen=0 THEN 1 ELSE 0 END),0)
FROM notifications WHERE user_id=? AND is_deleted=0`, userID).
		Scan(&c.Total, &c.Unread, &c.Unseen)
	return c, err
}

// SweepNotifications hard-deletes soft-deleted records and anything older
// than the cutoff. The only hard-delete path for notifications.
func (r Repo) SweepNotifications(ctx context.Context, olderThan string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM notifications WHERE is_deleted=1 OR created_at < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetWebhookCursor returns the last delivered rowid for a hook, zero when
// the hook has never delivered.
func (r Repo) GetWebhookCursor(ctx context.Context, hookURL string) (int64, error) {
	var cursor int64
	err := r.DB.QueryRowContext(ctx, `SELECT cursor FROM webhook_cursors WHERE hook_url=?`, hookURL).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return cursor, err
}

func (r Repo) SetWebhookCursor(ctx context.Context, hookURL string, cursor int64, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO webhook_cursors(hook_url,cursor,updated_at) VALUES (?,?,?)
ON CONFLICT(hook_url) DO UPDATE SET cursor=excluded.cursor, updated_at=excluded.updated_at`,
		hookURL, cursor, now)
	return err
}

// NotificationRecord pairs a notification with its rowid cursor for the
// webhook push consumer.
type NotificationRecord struct {
	Cursor       int64
	Notification domain.Notification
}

// NotificationsAfter returns records with rowids greater than the cursor in
// insertion order, for the webhook push consumer.
func (r Repo) NotificationsAfter(ctx context.Context, cursor int64, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT rowid, `+notificationColumns+` FROM notifications WHERE rowid > ? ORDER BY rowid ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []NotificationRecord
	for rows.Next() {
		var rec NotificationRecord
		n := &rec.Notification
		var metadata, readAt sql.NullString
		if err := rows.Scan(&rec.Cursor, &n.ID, &n.UserID, &n.Category, &n.Title, &n.Message, &metadata,
			&n.IsRead, &n.IsSeen, &n.IsDeleted, &n.CreatedAt, &readAt); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
				return nil, err
			}
		}
		if readAt.Valid {
			n.ReadAt = &readAt.String
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
