// Package engine is the single authority for engagement lifecycle
// mutations: project status transitions, the quote ledger, and conversation
// resolution. Every multi-row mutation runs in one transaction; notification
// fan-out is handed to the dispatcher only after that transaction commits.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gigline/internal/domain"
	"gigline/internal/events"
	"gigline/internal/fault"
	"gigline/internal/notify"
	"gigline/internal/repo"
)

// txTimeout bounds every engine transaction so a competing writer cannot
// wedge a caller indefinitely.
const txTimeout = 5 * time.Second

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Notify *notify.Dispatcher
	Now    func() time.Time
}

func New(db *sql.DB, dispatcher *notify.Dispatcher) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Notify: dispatcher,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// begin opens a deadline-bounded transaction.
func (e Engine) begin(ctx context.Context) (context.Context, context.CancelFunc, *sql.Tx, error) {
	txCtx, cancel := context.WithTimeout(ctx, txTimeout)
	tx, err := e.DB.BeginTx(txCtx, nil)
	if err != nil {
		cancel()
		return nil, nil, nil, fault.TransientError{Op: "begin transaction", Err: err}
	}
	return txCtx, cancel, tx, nil
}

// ProjectCreateOptions are parameters for posting a project.
type ProjectCreateOptions struct {
	Title       string
	Description string
	Budget      float64
	Deadline    string
	PosterID    string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Title == "" {
		return domain.Project{}, fault.InvalidArgumentError{Field: "title", Reason: "is required"}
	}
	if opts.PosterID == "" {
		return domain.Project{}, fault.InvalidArgumentError{Field: "poster_id", Reason: "is required"}
	}
	if opts.Budget < 0 {
		return domain.Project{}, fault.InvalidArgumentError{Field: "budget", Reason: "must not be negative"}
	}
	now := e.timestamp()
	p := domain.Project{
		ID:          uuid.New().String(),
		Title:       opts.Title,
		Description: opts.Description,
		Budget:      opts.Budget,
		Deadline:    opts.Deadline,
		PosterID:    opts.PosterID,
		Status:      domain.ProjectOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	txCtx, cancel, tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer cancel()
	defer tx.Rollback()
	if err := e.Repo.InsertProject(txCtx, tx, p); err != nil {
		return domain.Project{}, fault.TransientError{Op: "insert project", Err: err}
	}
	if err := e.Events.Append(txCtx, tx, events.TypeProjectCreated, p.ID, "project", p.ID, opts.PosterID, events.EventPayload{"title": p.Title}); err != nil {
		return domain.Project{}, fault.TransientError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, fault.TransientError{Op: "commit project", Err: err}
	}
	return p, nil
}

// Approve atomically assigns the project to the quoted provider, approves
// the winning quote, and rejects every other submitted quote. Exactly one
// concurrent approval can win: the project row is mutated under a
// status=open guard, so the loser's transaction changes nothing and the
// whole operation fails with Conflict.
func (e Engine) Approve(ctx context.Context, projectID, quoteID, approverID string) (domain.ApprovalResult, error) {
	var res domain.ApprovalResult
	p, err := e.loadProject(ctx, projectID)
	if err != nil {
		return res, err
	}
	q, err := e.loadQuote(ctx, quoteID)
	if err != nil {
		return res, err
	}
	if q.ProjectID != projectID {
		return res, fault.InvalidArgumentError{Field: "quote_id", Reason: fmt.Sprintf("quote %s does not belong to project %s", quoteID, projectID)}
	}
	if approverID != p.PosterID {
		return res, fault.ForbiddenError{Action: "approve a quote on project " + projectID, Reason: "only the poster may approve"}
	}
	if p.Status != domain.ProjectOpen {
		return res, fault.ConflictError{Kind: "project", ID: projectID, Status: string(p.Status)}
	}
	if q.Status != domain.QuoteSubmitted {
		return res, fault.InvalidStateError{Kind: "quote", ID: quoteID, Status: string(q.Status), Action: "approve"}
	}

	now := e.timestamp()
	txCtx, cancel, tx, err := e.begin(ctx)
	if err != nil {
		return res, err
	}
	defer cancel()
	defer tx.Rollback()

	ok, err := e.Repo.AssignProject(txCtx, tx, projectID, q.ProviderID, quoteID, q.Amount, now)
	if err != nil {
		// Lock contention included: the compare-and-swap never ran, so no
		// status can be reported and the caller simply retries.
		return res, fault.TransientError{Op: "assign project", Err: err}
	}
	if !ok {
		// A competing approval committed first; report the state it left.
		// The re-read must stay on this transaction: the pool's only
		// connection is held by it until rollback.
		current, readErr := e.Repo.GetProjectTx(txCtx, tx, projectID)
		status := string(domain.ProjectAssigned)
		if readErr == nil {
			status = string(current.Status)
		}
		return res, fault.ConflictError{Kind: "project", ID: projectID, Status: status}
	}
	if err := e.Repo.SetQuoteStatus(txCtx, tx, quoteID, domain.QuoteApproved, now); err != nil {
		return res, fault.TransientError{Op: "approve quote", Err: err}
	}
	rejected, err := e.Repo.RejectSubmittedQuotes(txCtx, tx, projectID, quoteID, now)
	if err != nil {
		return res, fault.TransientError{Op: "reject competing quotes", Err: err}
	}
	if err := e.Events.Append(txCtx, tx, events.TypeProjectAssigned, projectID, "project", projectID, approverID, events.EventPayload{
		"quote_id":    quoteID,
		"provider_id": q.ProviderID,
		"amount":      q.Amount,
	}); err != nil {
		return res, fault.TransientError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return res, fault.TransientError{Op: "commit approval", Err: err}
	}

	p.Status = domain.ProjectAssigned
	p.AssignedProviderID = &q.ProviderID
	p.ApprovedQuoteID = &q.ID
	p.ApprovedAmount = &q.Amount
	p.UpdatedAt = now
	q.Status = domain.QuoteApproved
	q.UpdatedAt = now
	q.ApprovedAt = &now
	res = domain.ApprovalResult{Project: p, Approved: q, Rejected: rejected}

	// Fan-out strictly after commit; dispatch failures are the dispatcher's
	// problem, never this operation's.
	meta := map[string]string{"project_id": projectID, "quote_id": quoteID}
	e.Notify.Dispatch([]string{q.ProviderID}, domain.CategoryQuote,
		"Quote approved", fmt.Sprintf("Your quote on %q was approved.", p.Title), meta)
	e.Notify.Dispatch([]string{approverID}, domain.CategoryJob,
		"Project assigned", fmt.Sprintf("%q is now assigned to your chosen provider.", p.Title), meta)
	for _, loser := range rejected {
		e.Notify.Dispatch([]string{loser.ProviderID}, domain.CategoryQuote,
			"Quote not selected", fmt.Sprintf("Another quote was chosen for %q.", p.Title),
			map[string]string{"project_id": projectID, "quote_id": loser.ID})
	}
	return res, nil
}

// Cancel moves an open or assigned project to cancelled. Terminal: there is
// no re-open path.
func (e Engine) Cancel(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.transition(ctx, projectID, actorID, domain.ProjectCancelled, events.TypeProjectCancelled)
}

// Complete moves an assigned project to completed.
func (e Engine) Complete(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.transition(ctx, projectID, actorID, domain.ProjectCompleted, events.TypeProjectCompleted)
}

func (e Engine) transition(ctx context.Context, projectID, actorID string, target domain.ProjectStatus, evtType string) (domain.Project, error) {
	p, err := e.loadProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if actorID != p.PosterID {
		return domain.Project{}, fault.ForbiddenError{Action: fmt.Sprintf("set project %s to %s", projectID, target), Reason: "only the poster may change project status"}
	}
	if !domain.CanTransition(p.Status, target) {
		return domain.Project{}, fault.IllegalTransitionError{ProjectID: projectID, From: string(p.Status), To: string(target)}
	}

	now := e.timestamp()
	txCtx, cancel, tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer cancel()
	defer tx.Rollback()
	ok, err := e.Repo.TransitionProject(txCtx, tx, projectID, p.Status, target, now)
	if err != nil {
		return domain.Project{}, fault.TransientError{Op: "transition project", Err: err}
	}
	if !ok {
		// Same constraint as Approve: re-read on this transaction, not the
		// pool, or the read would wait for this transaction's connection.
		current, readErr := e.Repo.GetProjectTx(txCtx, tx, projectID)
		status := string(p.Status)
		if readErr == nil {
			status = string(current.Status)
		}
		return domain.Project{}, fault.ConflictError{Kind: "project", ID: projectID, Status: status}
	}
	if err := e.Events.Append(txCtx, tx, evtType, projectID, "project", projectID, actorID, events.EventPayload{"from": p.Status, "to": target}); err != nil {
		return domain.Project{}, fault.TransientError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, fault.TransientError{Op: "commit transition", Err: err}
	}
	p.Status = target
	p.UpdatedAt = now

	if p.AssignedProviderID != nil {
		title := "Project cancelled"
		msg := fmt.Sprintf("%q was cancelled by the poster.", p.Title)
		if target == domain.ProjectCompleted {
			title = "Project completed"
			msg = fmt.Sprintf("%q was marked completed.", p.Title)
		}
		e.Notify.Dispatch([]string{*p.AssignedProviderID}, domain.CategoryJob, title, msg,
			map[string]string{"project_id": projectID})
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.loadProject(ctx, id)
}

func (e Engine) ListProjects(ctx context.Context, posterID string) ([]domain.Project, error) {
	items, err := e.Repo.ListProjects(ctx, posterID)
	if err != nil {
		return nil, fault.TransientError{Op: "list projects", Err: err}
	}
	return items, nil
}

func (e Engine) loadProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return p, fault.NotFoundError{Kind: "project", ID: id}
	}
	if err != nil {
		return p, fault.TransientError{Op: "load project", Err: err}
	}
	return p, nil
}

func (e Engine) loadQuote(ctx context.Context, id string) (domain.Quote, error) {
	q, err := e.Repo.GetQuote(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return q, fault.NotFoundError{Kind: "quote", ID: id}
	}
	if err != nil {
		return q, fault.TransientError{Op: "load quote", Err: err}
	}
	return q, nil
}
