package domain

// ProjectStatus and QuoteStatus are closed enums; every mutator goes through
// the transition table below instead of comparing raw strings at call sites.

type ProjectStatus string

const (
	ProjectOpen      ProjectStatus = "open"
	ProjectAssigned  ProjectStatus = "assigned"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

type QuoteStatus string

const (
	QuoteSubmitted QuoteStatus = "submitted"
	QuoteApproved  QuoteStatus = "approved"
	QuoteRejected  QuoteStatus = "rejected"
	QuoteWithdrawn QuoteStatus = "withdrawn"
)

// projectTransitions is the single authority for legal project edges.
// completed and cancelled are terminal; there is no re-open path.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectOpen:     {ProjectAssigned, ProjectCancelled},
	ProjectAssigned: {ProjectCompleted, ProjectCancelled},
}

// CanTransition reports whether from -> to is a legal project edge.
func CanTransition(from, to ProjectStatus) bool {
	for _, next := range projectTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidProjectStatus reports whether s is a member of the closed enum.
func ValidProjectStatus(s ProjectStatus) bool {
	switch s {
	case ProjectOpen, ProjectAssigned, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// Live reports whether a quote still counts against the one-per-provider
// rule and the project's quote_count.
func (s QuoteStatus) Live() bool {
	return s != QuoteWithdrawn
}

// Editable reports whether the owning provider may still mutate the quote.
// A decided quote (approved/rejected) is immutable, as is a withdrawn one.
func (s QuoteStatus) Editable() bool {
	return s == QuoteSubmitted
}

type NotificationCategory string

const (
	CategoryJob        NotificationCategory = "job"
	CategoryQuote      NotificationCategory = "quote"
	CategoryMessage    NotificationCategory = "message"
	CategoryProfile    NotificationCategory = "profile"
	CategoryEstimation NotificationCategory = "estimation"
	CategorySupport    NotificationCategory = "support"
	CategoryCommunity  NotificationCategory = "community"
	CategorySystem     NotificationCategory = "system"
)

// ValidCategory reports whether c is a member of the closed enum.
func ValidCategory(c NotificationCategory) bool {
	switch c {
	case CategoryJob, CategoryQuote, CategoryMessage, CategoryProfile,
		CategoryEstimation, CategorySupport, CategoryCommunity, CategorySystem:
		return true
	}
	return false
}

// Account types as reported by the identity provider.
const (
	AccountPoster   = "poster"
	AccountProvider = "provider"
	AccountAdmin    = "admin"
)
