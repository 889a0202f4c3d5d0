package bus

import "time"

// InboundTurn is one message handed to the state engine by a transport.
type InboundTurn struct {
	SessionID string
	Role      string
	Content   string
	Timestamp time.Time
}

// TurnResult is what the engine hands back to the transport after a turn.
type TurnResult struct {
	SessionID    string
	MemoryDigest string
	Saved        bool
}

// SessionSnapshot is a read-only copy of session state.
type SessionSnapshot struct {
	SessionID          string
	CreatedAt          time.Time
	LastActiveAt       time.Time
	Status             string
	TokenCountEstimate int
	ActivePersonaID    string
}
