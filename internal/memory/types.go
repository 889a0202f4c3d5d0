package memory

import "time"

// Item types, in classification precedence order.
const (
	TypePreference   = "preference"
	TypeFact         = "fact"
	TypeRelationship = "relationship"
	TypeEvent        = "event"
)

// Item is one durable fact extracted from a conversation turn.
type Item struct {
	ID          string
	SessionID   string
	Content     string
	Type        string
	Importance  int
	Keywords    []string
	CreatedAt   time.Time
	LastUsedAt  time.Time // zero until first retrieval
	AccessCount int
	Active      bool
}

// RetrievalResult is the ranked outcome of a retrieve call.
type RetrievalResult struct {
	Items   []Item
	Summary string
}

// Stats is a compact per-session snapshot used by status reporting.
type Stats struct {
	Total  int
	Active int
}
