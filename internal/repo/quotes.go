package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gigline/internal/domain"
)

const quoteColumns = `seq,id,project_id,provider_id,amount,COALESCE(timeline,''),COALESCE(description,''),attachments_json,status,created_at,updated_at,approved_at,rejected_at`

func scanQuote(row rowScanner) (domain.Quote, error) {
	var q domain.Quote
	var attachments sql.NullString
	var approvedAt, rejectedAt sql.NullString
	err := row.Scan(&q.Seq, &q.ID, &q.ProjectID, &q.ProviderID, &q.Amount, &q.Timeline, &q.Description,
		&attachments, &q.Status, &q.CreatedAt, &q.UpdatedAt, &approvedAt, &rejectedAt)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	if err != nil {
		return q, err
	}
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &q.Attachments); err != nil {
			return q, fmt.Errorf("quote %s attachments: %w", q.ID, err)
		}
	}
	if approvedAt.Valid {
		q.ApprovedAt = &approvedAt.String
	}
	if rejectedAt.Valid {
		q.RejectedAt = &rejectedAt.String
	}
	return q, nil
}

func marshalAttachments(atts []domain.Attachment) (any, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(atts)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// InsertQuote persists a new quote and fills in its store-assigned sequence.
func (r Repo) InsertQuote(ctx context.Context, tx *sql.Tx, q *domain.Quote) error {
	atts, err := marshalAttachments(q.Attachments)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO quotes(id,project_id,provider_id,amount,timeline,description,attachments_json,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		q.ID, q.ProjectID, q.ProviderID, q.Amount, nullable(q.Timeline), nullable(q.Description), atts, q.Status, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return err
	}
	q.Seq, err = res.LastInsertId()
	return err
}

func (r Repo) GetQuote(ctx context.Context, id string) (domain.Quote, error) {
	return scanQuote(r.DB.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id=?`, id))
}

func (r Repo) GetQuoteTx(ctx context.Context, tx *sql.Tx, id string) (domain.Quote, error) {
	return scanQuote(tx.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id=?`, id))
}

// LiveQuote returns the provider's non-withdrawn quote on the project, if
// one exists.
func (r Repo) LiveQuote(ctx context.Context, tx *sql.Tx, projectID, providerID string) (domain.Quote, error) {
	return scanQuote(tx.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE project_id=? AND provider_id=? AND status != ?`,
		projectID, providerID, domain.QuoteWithdrawn))
}

// ListQuotesForProject returns quotes newest first; the autoincrement seq
// breaks created_at ties so the order is total.
func (r Repo) ListQuotesForProject(ctx context.Context, projectID string) ([]domain.Quote, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE project_id=? ORDER BY created_at DESC, seq ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func (r Repo) ListQuotesForProvider(ctx context.Context, providerID string) ([]domain.Quote, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE provider_id=? ORDER BY created_at DESC, seq ASC`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// UpdateQuote rewrites the mutable fields of a submitted quote.
func (r Repo) UpdateQuote(ctx context.Context, tx *sql.Tx, q domain.Quote) error {
	atts, err := marshalAttachments(q.Attachments)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE quotes SET amount=?, timeline=?, description=?, attachments_json=?, updated_at=? WHERE id=?`,
		q.Amount, nullable(q.Timeline), nullable(q.Description), atts, q.UpdatedAt, q.ID)
	return err
}

func (r Repo) SetQuoteStatus(ctx context.Context, tx *sql.Tx, id string, status domain.QuoteStatus, now string) error {
	var tsColumn string
	switch status {
	case domain.QuoteApproved:
		tsColumn = ", approved_at=?"
	case domain.QuoteRejected:
		tsColumn = ", rejected_at=?"
	}
	query := `UPDATE quotes SET status=?, updated_at=?` + tsColumn + ` WHERE id=?`
	args := []any{status, now}
	if tsColumn != "" {
		args = append(args, now)
	}
	args = append(args, id)
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// RejectSubmittedQuotes marks every still-submitted quote on the project
// except the winner as rejected, returning the affected quotes.
func (r Repo) RejectSubmittedQuotes(ctx context.Context, tx *sql.Tx, projectID, winnerID, now string) ([]domain.Quote, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE project_id=? AND id != ? AND status=?`,
		projectID, winnerID, domain.QuoteSubmitted)
	if err != nil {
		return nil, err
	}
	var losers []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		losers = append(losers, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range losers {
		if err := r.SetQuoteStatus(ctx, tx, losers[i].ID, domain.QuoteRejected, now); err != nil {
			return nil, err
		}
		losers[i].Status = domain.QuoteRejected
		losers[i].UpdatedAt = now
		losers[i].RejectedAt = &now
	}
	return losers, nil
}
