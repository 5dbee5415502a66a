package engine_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"gigline/internal/db"
	"gigline/internal/domain"
	"gigline/internal/engine"
	"gigline/internal/fault"
	"gigline/internal/migrate"
	"gigline/internal/notify"
	"gigline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Notify *notify.Dispatcher
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	dispatcher := notify.New(repo.Repo{DB: conn}, logger, 2, 64)
	eng := engine.New(conn, dispatcher)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Notify: dispatcher, Ctx: context.Background()}
}

func (env testEnv) mustProject(t *testing.T, poster string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Title:    "Fix the roof",
		Budget:   500,
		PosterID: poster,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (env testEnv) mustQuote(t *testing.T, projectID, provider string, amount float64) domain.Quote {
	t.Helper()
	q, err := env.Engine.SubmitQuote(env.Ctx, engine.QuoteSubmitOptions{
		ProjectID:  projectID,
		ProviderID: provider,
		Amount:     amount,
	})
	if err != nil {
		t.Fatalf("submit quote for %s: %v", provider, err)
	}
	return q
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{PosterID: "alice"})
	var ia fault.InvalidArgumentError
	if !errors.As(err, &ia) || ia.Field != "title" {
		t.Fatalf("expected invalid title, got %v", err)
	}
	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "x", PosterID: "alice", Budget: -1})
	if !errors.As(err, &ia) || ia.Field != "budget" {
		t.Fatalf("expected invalid budget, got %v", err)
	}
	p := env.mustProject(t, "alice")
	if p.Status != domain.ProjectOpen || p.QuoteCount != 0 {
		t.Fatalf("unexpected new project state: %+v", p)
	}
}

func TestApproveAssignsWinnerAndRejectsLosers(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "alice")
	win := env.mustQuote(t, p.ID, "bob", 450)
	env.mustQuote(t, p.ID, "carol", 480)
	env.mustQuote(t, p.ID, "dave", 500)

	res, err := env.Engine.Approve(env.Ctx, p.ID, win.ID, "alice")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Project.Status != domain.ProjectAssigned {
		t.Fatalf("project status = %s, want assigned", res.Project.Status)
	}
	if res.Project.AssignedProviderID == nil || *res.Project.AssignedProviderID != "bob" {
		t.Fatalf("assigned provider = %v, want bob", res.Project.AssignedProviderID)
	}
	if res.Approved.Status != domain.QuoteApproved {
		t.Fatalf("winning quote status = %s", res.Approved.Status)
	}
	if len(res.Rejected) != 2 {
		t.Fatalf("rejected %d quotes, want 2", len(res.Rejected))
	}
	for _, q := range res.Rejected {
		if q.Status != domain.QuoteRejected {
			t.Fatalf("loser %s status = %s, want rejected", q.ID, q.Status)
		}
	}

	stored, err := env.Engine.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if stored.Status != domain.ProjectAssigned || stored.ApprovedQuoteID == nil || *stored.ApprovedQuoteID != win.ID {
		t.Fatalf("stored project not assigned to winner: %+v", stored)
	}

	env.Notify.Flush()
	for user, want := range map[string]string{
		"bob":   "Quote approved",
		"carol": "Quote not selected",
		"dave":  "Quote not selected",
		"alice": "Project assigned",
	} {
		items, err := env.Notify.List(env.Ctx, user, 10)
		if err != nil {
			t.Fatalf("list notifications for %s: %v", user, err)
		}
		found := false
		for _, n := range items {
			if n.Title == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s missing notification %q (got %d records)", user, want, len(items))
		}
	}
}

func TestApproveRequiresPosterAndOpenProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "alice")
	q := env.mustQuote(t, p.ID, "bob", 450)

	if _, err := env.Engine.Approve(env.Ctx, p.ID, q.ID, "mallory"); err == nil {
		t.Fatal("expected forbidden for non-poster")
	} else {
		var fe fault.ForbiddenError
		if !errors.As(err, &fe) {
			t.Fatalf("expected ForbiddenError, got %v", err)
		}
	}

	if _, err := env.Engine.Approve(env.Ctx, p.ID, q.ID, "alice"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Second approval must fail with the current status verbatim.
	late := env.Engine
	_, err := late.Approve(env.Ctx, p.ID, q.ID, "alice")
	var ce fault.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Status != "assigned" {
		t.Fatalf("conflict status = %q, want assigned", ce.Status)
	}
}

func TestApproveQuoteFromAnotherProject(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.mustProject(t, "alice")
	p2 := env.mustProject(t, "alice")
	q2 := env.mustQuote(t, p2.ID, "bob", 100)

	_, err := env.Engine.Approve(env.Ctx, p1.ID, q2.ID, "alice")
	var ia fault.InvalidArgumentError
	if !errors.As(err, &ia) {
		t.Fatalf("expected InvalidArgumentError, got %v", err)
	}
}

func TestConcurrentApprovalsExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "alice")
	q1 := env.mustQuote(t, p.ID, "bob", 450)
	q2 := env.mustQuote(t, p.ID, "carol", 480)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := time.Now()
	for i, quoteID := range []string{q1.ID, q2.ID} {
		wg.Add(1)
		go func(i int, quoteID string) {
			defer wg.Done()
			_, errs[i] = env.Engine.Approve(env.Ctx, p.ID, quoteID, "alice")
		}(i, quoteID)
	}
	wg.Wait()

	// The loser must fail promptly. Its conflict re-read happens inside its
	// own transaction; a pool read there would block on the transaction's
	// connection until the deadline.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("racing approvals took %v, loser is stalling", elapsed)
	}

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !fault.Retryable(err) {
			t.Fatalf("loser got non-retryable error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("got %d winners, want exactly 1 (errs=%v)", wins, errs)
	}

	stored, err := env.Engine.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != domain.ProjectAssigned || stored.AssignedProviderID == nil {
		t.Fatalf("project not assigned after race: %+v", stored)
	}
	quotes, err := env.Engine.ListQuotes(env.Ctx, p.ID, "alice", false)
	if err != nil {
		t.Fatalf("list quotes: %v", err)
	}
	approved := 0
	for _, q := range quotes {
		if q.Status == domain.QuoteApproved {
			approved++
		}
	}
	if approved != 1 {
		t.Fatalf("%d approved quotes after race, want 1", approved)
	}
}

func TestProjectTransitions(t *testing.T) {
	env := newTestEnv(t)

	// open -> cancelled is allowed, and cancelled is terminal.
	p := env.mustProject(t, "alice")
	p, err := env.Engine.Cancel(env.Ctx, p.ID, "alice")
	if err != nil || p.Status != domain.ProjectCancelled {
		t.Fatalf("cancel open project: %v (status=%s)", err, p.Status)
	}
	if _, err := env.Engine.Cancel(env.Ctx, p.ID, "alice"); err == nil {
		t.Fatal("expected cancel of cancelled project to fail")
	}

	// open -> completed is not a legal edge.
	p2 := env.mustProject(t, "alice")
	_, err = env.Engine.Complete(env.Ctx, p2.ID, "alice")
	var it fault.IllegalTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}

	// assigned -> completed works and notifies the provider.
	q := env.mustQuote(t, p2.ID, "bob", 300)
	if _, err := env.Engine.Approve(env.Ctx, p2.ID, q.ID, "alice"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	done, err := env.Engine.Complete(env.Ctx, p2.ID, "alice")
	if err != nil || done.Status != domain.ProjectCompleted {
		t.Fatalf("complete assigned project: %v", err)
	}
	env.Notify.Flush()
	items, err := env.Notify.List(env.Ctx, "bob", 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, n := range items {
		if n.Title == "Project completed" {
			found = true
		}
	}
	if !found {
		t.Fatal("provider missing completion notification")
	}

	// completed is terminal too.
	if _, err := env.Engine.Cancel(env.Ctx, p2.ID, "alice"); err == nil {
		t.Fatal("expected cancel of completed project to fail")
	}
}

func TestTransitionForbiddenForNonPoster(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "alice")
	_, err := env.Engine.Cancel(env.Ctx, p.ID, "bob")
	var fe fault.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GetProject(env.Ctx, "nope")
	var nf fault.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "project" {
		t.Fatalf("expected project NotFoundError, got %v", err)
	}
}
