package domain

// Account mirrors the identity provider's view of a user. Display data is
// refreshed from the principal on every authenticated call, so reads here
// are always current.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type" enum:"poster,provider,admin"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	Budget             float64       `json:"budget"`
	Deadline           string        `json:"deadline,omitempty" format:"date-time"`
	PosterID           string        `json:"poster_id"`
	Status             ProjectStatus `json:"status" enum:"open,assigned,completed,cancelled"`
	QuoteCount         int           `json:"quote_count"`
	AssignedProviderID *string       `json:"assigned_provider_id,omitempty"`
	ApprovedQuoteID    *string       `json:"approved_quote_id,omitempty"`
	ApprovedAmount     *float64      `json:"approved_amount,omitempty"`
	CreatedAt          string        `json:"created_at" format:"date-time"`
	UpdatedAt          string        `json:"updated_at" format:"date-time"`
}

// Attachment is a stored reference to an uploaded file; bytes live in the
// external file store, only the returned URL and metadata are kept.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type Quote struct {
	ID          string       `json:"id"`
	Seq         int64        `json:"-"`
	ProjectID   string       `json:"project_id"`
	ProviderID  string       `json:"provider_id"`
	Amount      float64      `json:"amount"`
	Timeline    string       `json:"timeline,omitempty"`
	Description string       `json:"description,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Status      QuoteStatus  `json:"status" enum:"submitted,approved,rejected,withdrawn"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	UpdatedAt   string       `json:"updated_at" format:"date-time"`
	ApprovedAt  *string      `json:"approved_at,omitempty" format:"date-time"`
	RejectedAt  *string      `json:"rejected_at,omitempty" format:"date-time"`
}

// Conversation is a 1:1 thread scoped to one project. ParticipantA and
// ParticipantB are stored in lexicographic order so the pair is canonical.
type Conversation struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	ParticipantA  string `json:"participant_a"`
	ParticipantB  string `json:"participant_b"`
	LastMessage   string `json:"last_message"`
	LastMessageAt string `json:"last_message_at" format:"date-time"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// HasParticipant reports whether userID is one of the two parties.
func (c Conversation) HasParticipant(userID string) bool {
	return userID == c.ParticipantA || userID == c.ParticipantB
}

// Counterpart returns the other party for userID, or "" if userID is not a
// participant.
func (c Conversation) Counterpart(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

// ConversationView is a Conversation enriched with live display data for
// listings. Enrichment is computed per request, never persisted.
type ConversationView struct {
	Conversation
	CounterpartID   string `json:"counterpart_id"`
	CounterpartName string `json:"counterpart_name"`
	CounterpartType string `json:"counterpart_type"`
	ProjectTitle    string `json:"project_title"`
}

type Message struct {
	ID             string  `json:"id"`
	Seq            int64   `json:"seq"`
	ConversationID string  `json:"conversation_id"`
	SenderID       string  `json:"sender_id"`
	Text           string  `json:"text,omitempty"`
	AttachmentURL  *string `json:"attachment_url,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Category  NotificationCategory `json:"category"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Metadata  map[string]string    `json:"metadata,omitempty"`
	IsRead    bool                 `json:"is_read"`
	IsSeen    bool                 `json:"is_seen"`
	IsDeleted bool                 `json:"-"`
	CreatedAt string               `json:"created_at" format:"date-time"`
	ReadAt    *string              `json:"read_at,omitempty" format:"date-time"`
}

// NotificationCounts aggregates non-deleted records for one recipient.
type NotificationCounts struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
	Unseen int `json:"unseen"`
}

// ApprovalResult is the outcome of approving one quote: the fully
// transitioned project, the winning quote, and the quotes rejected in the
// same transaction.
type ApprovalResult struct {
	Project  Project `json:"project"`
	Approved Quote   `json:"approved"`
	Rejected []Quote `json:"rejected"`
}

type APIKey struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
