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

const conversationPlaceholder = "Conversation started"

// ConversationID is a pure function of the project and the unordered
// participant pair, so every resolver for the same triple addresses the same
// storage location. No query-then-insert anywhere.
func ConversationID(projectID, participantA, participantB string) string {
	lo, hi := sortPair(participantA, participantB)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(projectID+"|"+lo+"|"+hi)).String()
}

func sortPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// Resolve finds or lazily creates the thread between two parties on a
// project. Idempotent and race-safe: the deterministic id turns creation
// into one conditional write.
func (e Engine) Resolve(ctx context.Context, projectID, actorID, otherID string) (domain.ConversationView, error) {
	if projectID == "" {
		return domain.ConversationView{}, fault.InvalidArgumentError{Field: "project_id", Reason: "is required"}
	}
	if otherID == "" {
		return domain.ConversationView{}, fault.InvalidArgumentError{Field: "participant_id", Reason: "is required"}
	}
	if actorID == otherID {
		return domain.ConversationView{}, fault.InvalidArgumentError{Field: "participant_id", Reason: "cannot open a conversation with yourself"}
	}
	lo, hi := sortPair(actorID, otherID)
	now := e.timestamp()
	c := domain.Conversation{
		ID:            ConversationID(projectID, actorID, otherID),
		ProjectID:     projectID,
		ParticipantA:  lo,
		ParticipantB:  hi,
		LastMessage:   conversationPlaceholder,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	txCtx, cancel, tx, err := e.begin(ctx)
	if err != nil {
		return domain.ConversationView{}, err
	}
	defer cancel()
	defer tx.Rollback()
	created, err := e.Repo.InsertConversationIfAbsent(txCtx, tx, c)
	if err != nil {
		return domain.ConversationView{}, fault.TransientError{Op: "create conversation", Err: err}
	}
	if created {
		if err := e.Events.Append(txCtx, tx, events.TypeConversationNew, projectID, "conversation", c.ID, actorID, nil); err != nil {
			return domain.ConversationView{}, fault.TransientError{Op: "append event", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ConversationView{}, fault.TransientError{Op: "commit conversation", Err: err}
	}

	stored, err := e.Repo.GetConversation(ctx, c.ID)
	if err != nil {
		return domain.ConversationView{}, fault.TransientError{Op: "load conversation", Err: err}
	}
	return e.enrich(ctx, stored, actorID), nil
}

// enrich attaches live display data: counterpart name/type fetched fresh on
// every call, and the project title with a placeholder when the project is
// gone. Nothing here is cached in the conversation record.
func (e Engine) enrich(ctx context.Context, c domain.Conversation, viewerID string) domain.ConversationView {
	view := domain.ConversationView{Conversation: c, CounterpartID: c.Counterpart(viewerID)}
	if account, err := e.Repo.GetAccount(ctx, view.CounterpartID); err == nil {
		view.CounterpartName = account.DisplayName
		view.CounterpartType = account.Type
	}
	if p, err := e.Repo.GetProject(ctx, c.ProjectID); err == nil {
		view.ProjectTitle = p.Title
	} else {
		view.ProjectTitle = "no longer available"
	}
	return view
}

// ListConversations returns every thread the user participates in, most
// recently active first.
func (e Engine) ListConversations(ctx context.Context, userID string) ([]domain.ConversationView, error) {
	items, err := e.Repo.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fault.TransientError{Op: "list conversations", Err: err}
	}
	views := make([]domain.ConversationView, 0, len(items))
	for _, c := range items {
		views = append(views, e.enrich(ctx, c, userID))
	}
	return views, nil
}

// PostMessage appends a message and refreshes the thread preview in one
// transaction, message first. Fan-out to the counterpart and a delivery
// acknowledgment to the sender follow the commit.
func (e Engine) PostMessage(ctx context.Context, conversationID, senderID, text string, attachmentURL *string) (domain.Message, error) {
	c, err := e.loadConversation(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !c.HasParticipant(senderID) {
		return domain.Message{}, fault.ForbiddenError{Action: "post in conversation " + conversationID, Reason: "not a participant"}
	}
	text = strings.TrimSpace(text)
	if text == "" && (attachmentURL == nil || strings.TrimSpace(*attachmentURL) == "") {
		return domain.Message{}, fault.InvalidArgumentError{Field: "text", Reason: "message needs text or an attachment"}
	}

	now := e.timestamp()
	m := domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		AttachmentURL:  attachmentURL,
		CreatedAt:      now,
	}
	preview := text
	if preview == "" {
		preview = "[attachment]"
	}
	txCtx, cancel, tx, err := e.begin(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	defer cancel()
	defer tx.Rollback()
	if err := e.Repo.InsertMessage(txCtx, tx, &m); err != nil {
		return domain.Message{}, fault.TransientError{Op: "insert message", Err: err}
	}
	if err := e.Repo.UpdateConversationPreview(txCtx, tx, conversationID, preview, now); err != nil {
		return domain.Message{}, fault.TransientError{Op: "update conversation preview", Err: err}
	}
	if err := e.Events.Append(txCtx, tx, events.TypeMessagePosted, c.ProjectID, "message", m.ID, senderID, nil); err != nil {
		return domain.Message{}, fault.TransientError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, fault.TransientError{Op: "commit message", Err: err}
	}

	senderName := senderID
	if account, err := e.Repo.GetAccount(ctx, senderID); err == nil && account.DisplayName != "" {
		senderName = account.DisplayName
	}
	meta := map[string]string{"conversation_id": conversationID, "message_id": m.ID}
	e.Notify.Dispatch([]string{c.Counterpart(senderID)}, domain.CategoryMessage,
		"New message", fmt.Sprintf("%s sent you a message.", senderName), meta)
	e.Notify.Dispatch([]string{senderID}, domain.CategorySystem, "Message delivered", "", meta)
	return m, nil
}

// ListMessages returns a thread's messages in creation order to one of its
// participants.
func (e Engine) ListMessages(ctx context.Context, conversationID, requesterID string) ([]domain.Message, error) {
	c, err := e.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(requesterID) {
		return nil, fault.ForbiddenError{Action: "read conversation " + conversationID, Reason: "not a participant"}
	}
	msgs, err := e.Repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fault.TransientError{Op: "list messages", Err: err}
	}
	return msgs, nil
}

func (e Engine) loadConversation(ctx context.Context, id string) (domain.Conversation, error) {
	c, err := e.Repo.GetConversation(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return c, fault.NotFoundError{Kind: "conversation", ID: id}
	}
	if err != nil {
		return c, fault.TransientError{Op: "load conversation", Err: err}
	}
	return c, nil
}
