package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gigline/internal/domain"
	"gigline/internal/events"
	"gigline/internal/fault"
	"gigline/internal/repo"
)

// QuoteSubmitOptions are parameters for submitting a quote.
type QuoteSubmitOptions struct {
	ProjectID   string
	ProviderID  string
	Amount      float64
	Timeline    string
	Description string
	Attachments []domain.Attachment
}

// SubmitQuote validates, persists, and counts a new quote. The quote insert
// and the parent's quote_count increment share one transaction: if either
// fails, neither is observable.
func (e Engine) SubmitQuote(ctx context.Context, opts QuoteSubmitOptions) (domain.Quote, error) {
	if opts.ProjectID == "" {
		return domain.Quote{}, fault.InvalidArgumentError{Field: "project_id", Reason: "is required"}
	}
	if opts.ProviderID == "" {
		return domain.Quote{}, fault.InvalidArgumentError{Field: "provider_id", Reason: "is required"}
	}
	if opts.Amount <= 0 {
		return domain.Quote{}, fault.InvalidArgumentError{Field: "amount", Reason: "must be positive"}
	}
	p, err := e.loadProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Quote{}, err
	}
	if p.Status != domain.ProjectOpen {
		return domain.Quote{}, fault.ConflictError{Kind: "project", ID: opts.ProjectID, Status: string(p.Status)}
	}
	if opts.ProviderID == p.PosterID {
		return domain.Quote{}, fault.ForbiddenError{Action: "quote on project " + opts.ProjectID, Reason: "posters cannot quote their own project"}
	}

	now := e.timestamp()
	q := domain.Quote{
		ID:          uuid.New().String(),
		ProjectID:   opts.ProjectID,
		ProviderID:  opts.ProviderID,
		Amount:      opts.Amount,
		Timeline:    opts.Timeline,
		Description: opts.Description,
		Attachments: opts.Attachments,
		Status:      domain.QuoteSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	txCtx, cancel, tx, err := e.begin(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	defer cancel()
	defer tx.Rollback()

	// The pre-transaction status check can go stale: an approval may commit
	// between it and begin. Re-check on this transaction's snapshot so no
	// quote ever lands on a project that is no longer open.
	cur, err := e.Repo.GetProjectTx(txCtx, tx, opts.ProjectID)
	if err != nil {
		return domain.Quote{}, fault.TransientError{Op: "reload project", Err: err}
	}
	if cur.Status != domain.ProjectOpen {
		return domain.Quote{}, fault.ConflictError{Kind: "project", ID: opts.ProjectID, Status: string(cur.Status)}
	}
	if _, err := e.Repo.LiveQuote(txCtx, tx, opts.ProjectID, opts.ProviderID); err == nil {
		return domain.Quote{}, fault.DuplicateQuoteError{ProjectID: opts.ProjectID, ProviderID: opts.ProviderID}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Quote{}, fault.TransientError{Op: "check live quote", Err: err}
	}
	if err := e.Repo.InsertQuote(txCtx, tx, &q); err != nil {
		// The partial unique index backstops the check above under races.
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return domain.Quote{}, fault.DuplicateQuoteError{ProjectID: opts.ProjectID, ProviderID: opts.ProviderID}
		}
		return domain.Quote{}, fault.TransientError{Op: "insert quote", Err: err}
	}
	if err := e.Repo.BumpQuoteCount(txCtx, tx, opts.ProjectID, 1, now); err != nil {
		return domain.Quote{}, fault.TransientError{Op: "increment quote count", Err: err}
	}
	if err := e.Events.Append(txCtx, tx, events.TypeQuoteSubmitted, opts.ProjectID, "quote", q.ID, opts.ProviderID, events.EventPayload{"amount": q.Amount}); err != nil {
		return domain.Quote{}, fault.TransientError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Quote{}, fault.TransientError{Op: "commit quote", Err: err}
	}

	e.Notify.Dispatch([]string{p.PosterID}, domain.CategoryQuote,
		"New quote received", fmt.Sprintf("A provider quoted on %q.", p.Title),
		map[string]string{"project_id": p.ID, "quote_id": q.ID})
	return q, nil
}

// QuotePatch carries the owner-editable fields; nil means unchanged.
// Attachments are appended to the existing list, never replaced.
type QuotePatch struct {
	Amount      *float64
	Timeline    *string
	Description *string
	Attachments []domain.Attachment
}

func (e Engine) UpdateQuote(ctx context.Context, quoteID, editorID string, patch QuotePatch) (domain.Quote, error) {
	q, err := e.loadQuote(ctx, quoteID)
	if err != nil {
		return domain.Quote{}, err
	}
	if editorID != q.ProviderID {
		return domain.Quote{}, fault.ForbiddenError{Action: "edit quote " + quoteID, Reason: "only the quoting provider may edit"}
	}
	if !q.Status.Editable() {
		return domain.Quote{}, fault.InvalidStateError{Kind: "quote", ID: quoteID, Status: string(q.Status), Action: "edit"}
	}
	if patch.Amount != nil {
		if *patch.Amount <= 0 {
			return domain.Quote{}, fault.InvalidArgumentError{Field: "amount", Reason: "must be positive"}
		}
		q.Amount = *patch.Amount
	}
	if patch.Timeline != nil {
		q.Timeline = *patch.Timeline
	}
	if patch.Description != nil {
		q.Description = *patch.Description
	}
	q.Attachments = append(q.Attachments, patch.Attachments...)
	q.UpdatedAt = e.timestamp()

	txCtx, cancel, tx, err := e.begin(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	defer cancel()
	defer tx.Rollback()
	if err := e.Repo.UpdateQuote(txCtx, tx, q); err != nil {
		return domain.Quote{}, fault.TransientError{Op: "update quote", Err: err}
	}
	if err := e.Events.Append(txCtx, tx, events.TypeQuoteUpdated, q.ProjectID, "quote", q.ID, editorID, nil); err != nil {
		return domain.Quote{}, fault.TransientError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Quote{}, fault.TransientError{Op: "commit quote update", Err: err}
	}
	return q, nil
}

// WithdrawQuote retires a submitted quote and decrements the parent's
// quote_count (clamped at zero). Other quotes are unaffected.
func (e Engine) WithdrawQuote(ctx context.Context, quoteID, editorID string) error {
	q, err := e.loadQuote(ctx, quoteID)
	if err != nil {
		return err
	}
	if editorID != q.ProviderID {
		return fault.ForbiddenError{Action: "withdraw quote " + quoteID, Reason: "only the quoting provider may withdraw"}
	}
	if !q.Status.Editable() {
		return fault.InvalidStateError{Kind: "quote", ID: quoteID, Status: string(q.Status), Action: "withdraw"}
	}
	now := e.timestamp()
	txCtx, cancel, tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback()
	if err := e.Repo.SetQuoteStatus(txCtx, tx, quoteID, domain.QuoteWithdrawn, now); err != nil {
		return fault.TransientError{Op: "withdraw quote", Err: err}
	}
	if err := e.Repo.BumpQuoteCount(txCtx, tx, q.ProjectID, -1, now); err != nil {
		return fault.TransientError{Op: "decrement quote count", Err: err}
	}
	if err := e.Events.Append(txCtx, tx, events.TypeQuoteWithdrawn, q.ProjectID, "quote", q.ID, editorID, nil); err != nil {
		return fault.TransientError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return fault.TransientError{Op: "commit withdrawal", Err: err}
	}
	return nil
}

// ListQuotes returns a project's quotes to its poster, newest first with the
// sequence tie-break. admin bypasses the poster check.
func (e Engine) ListQuotes(ctx context.Context, projectID, requesterID string, admin bool) ([]domain.Quote, error) {
	p, err := e.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !admin && requesterID != p.PosterID {
		return nil, fault.ForbiddenError{Action: "list quotes on project " + projectID, Reason: "only the poster may view quotes"}
	}
	quotes, err := e.Repo.ListQuotesForProject(ctx, projectID)
	if err != nil {
		return nil, fault.TransientError{Op: "list quotes", Err: err}
	}
	return quotes, nil
}

// ListProviderQuotes returns a provider's own quotes across projects.
func (e Engine) ListProviderQuotes(ctx context.Context, providerID string) ([]domain.Quote, error) {
	quotes, err := e.Repo.ListQuotesForProvider(ctx, providerID)
	if err != nil {
		return nil, fault.TransientError{Op: "list provider quotes", Err: err}
	}
	return quotes, nil
}
