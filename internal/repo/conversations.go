package repo

import (
	"context"
	"database/sql"

	"gigline/internal/domain"
)

const conversationColumns = `id,project_id,participant_a,participant_b,last_message,last_message_at,created_at`

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.ProjectID, &c.ParticipantA, &c.ParticipantB, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// InsertConversationIfAbsent is a single conditional write keyed by the
// deterministic conversation id; concurrent resolvers for the same pair
// converge on one row. Reports whether this call created the row.
func (r Repo) InsertConversationIfAbsent(ctx context.Context, tx *sql.Tx, c domain.Conversation) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO conversations(id,project_id,participant_a,participant_b,last_message,last_message_at,created_at)
VALUES (?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		c.ID, c.ProjectID, c.ParticipantA, c.ParticipantB, c.LastMessage, c.LastMessageAt, c.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	return scanConversation(r.DB.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id=?`, id))
}

func (r Repo) ListConversationsForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE participant_a=? OR participant_b=? ORDER BY last_message_at DESC, id DESC`,
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// InsertMessage appends a message and fills in its store-assigned sequence.
// Must run before the preview update in the same transaction: a message
// without a preview is an acceptable degradation, the reverse is not.
func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m *domain.Message) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO messages(id,conversation_id,sender_id,body,attachment_url,created_at)
VALUES (?,?,?,?,?,?)`,
		m.ID, m.ConversationID, m.SenderID, m.Text, nullableStringPtr(m.AttachmentURL), m.CreatedAt)
	if err != nil {
		return err
	}
	m.Seq, err = res.LastInsertId()
	return err
}

// UpdateConversationPreview refreshes last_message/last_message_at.
func (r Repo) UpdateConversationPreview(ctx context.Context, tx *sql.Tx, conversationID, preview, at string) error {
	_, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message=?, last_message_at=? WHERE id=?`,
		preview, at, conversationID)
	return err
}

// ListMessages returns a conversation's messages in creation order; the
// sequence column makes the order total even when timestamps collide.
func (r Repo) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT seq,id,conversation_id,sender_id,body,attachment_url,created_at FROM messages WHERE conversation_id=? ORDER BY seq ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		var attachment sql.NullString
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &m.Text, &attachment, &m.CreatedAt); err != nil {
			return nil, err
		}
		if attachment.Valid {
			m.AttachmentURL = &attachment.String
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
