package server

import (
	"gigline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Budget      float64 `json:"budget"`
	Deadline    *string `json:"deadline,omitempty" format:"date-time"`
}

type SubmitQuoteRequest struct {
	Amount      float64             `json:"amount"`
	Timeline    *string             `json:"timeline,omitempty"`
	Description *string             `json:"description,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type UpdateQuoteRequest struct {
	Amount      *float64            `json:"amount,omitempty"`
	Timeline    *string             `json:"timeline,omitempty"`
	Description *string             `json:"description,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type ApproveQuoteRequest struct {
	QuoteID string `json:"quote_id"`
}

type ResolveConversationRequest struct {
	ProjectID   string `json:"project_id"`
	OtherUserID string `json:"other_user_id"`
}

type PostMessageRequest struct {
	Text          string  `json:"text,omitempty"`
	AttachmentURL *string `json:"attachment_url,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type APIKeyCreatedResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type projectList struct {
	Items []domain.Project `json:"items"`
}

type quoteList struct {
	Items []domain.Quote `json:"items"`
}

type conversationList struct {
	Items []domain.ConversationView `json:"items"`
}

type messageList struct {
	Items []domain.Message `json:"items"`
}

type notificationList struct {
	Items []domain.Notification `json:"items"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func nonNilProjects(in []domain.Project) []domain.Project {
	if in == nil {
		return []domain.Project{}
	}
	return in
}

func nonNilQuotes(in []domain.Quote) []domain.Quote {
	if in == nil {
		return []domain.Quote{}
	}
	return in
}

func nonNilConversations(in []domain.ConversationView) []domain.ConversationView {
	if in == nil {
		return []domain.ConversationView{}
	}
	return in
}

func nonNilMessages(in []domain.Message) []domain.Message {
	if in == nil {
		return []domain.Message{}
	}
	return in
}

func nonNilNotifications(in []domain.Notification) []domain.Notification {
	if in == nil {
		return []domain.Notification{}
	}
	return in
}
