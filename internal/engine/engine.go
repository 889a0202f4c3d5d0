package engine

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lumichat/murmur/internal/bus"
	"github.com/lumichat/murmur/internal/config"
	"github.com/lumichat/murmur/internal/history"
	"github.com/lumichat/murmur/internal/memory"
	"github.com/lumichat/murmur/internal/session"
)

// Engine is the conversational state core: it owns the session
// registry, the memory store, and the history persistence, and is the
// only component that mutates them. Transports and LLM clients talk to
// it in-process through the methods below.
type Engine struct {
	cfg      *config.Config
	sessions *session.Registry
	memory   *memory.Store
	history  *history.Store
	db       *memory.DB
}

func New(cfg *config.Config) *Engine {
	dbPath := cfg.Memory.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, "memory.db")
	}
	db, err := memory.OpenDB(dbPath)
	if err != nil {
		// Degrade to in-memory-only memory items.
		log.Printf("[engine] open memory db: %v", err)
		db = nil
	}

	return &Engine{
		cfg: cfg,
		sessions: session.NewRegistry(
			time.Duration(cfg.Session.TimeoutSeconds)*time.Second,
			time.Duration(cfg.Session.SweepIntervalSeconds)*time.Second,
		),
		memory:  memory.NewStore(cfg.Memory, db),
		history: history.NewStore(cfg.DataDir, cfg.History.ArchiveWindowDays),
		db:      db,
	}
}

// Start schedules the background session sweep.
func (e *Engine) Start(ctx context.Context) error {
	return e.sessions.Start(ctx)
}

func (e *Engine) Close() {
	e.sessions.Stop()
	if err := e.db.Close(); err != nil {
		log.Printf("[engine] close memory db: %v", err)
	}
}

// GetOrCreateSession returns the session state for id, creating the
// session and its conversation buffer if needed. An empty id gets a
// generated one.
func (e *Engine) GetOrCreateSession(id string) bus.SessionSnapshot {
	if id == "" {
		id = uuid.NewString()
	}
	snap := e.sessions.GetOrCreate(id)
	e.history.StartConversation(id)
	return snap
}

// RecordTurn processes one inbound message: refreshes the session,
// feeds the memory store, persists the transcript, and hands back the
// memory digest relevant to the turn. Persistence failure degrades to
// Saved=false; the turn itself never fails.
func (e *Engine) RecordTurn(turn bus.InboundTurn) bus.TurnResult {
	snap := e.GetOrCreateSession(turn.SessionID)
	id := snap.SessionID
	e.sessions.AddTokens(id, memory.EstimateTokens(turn.Content))

	if turn.Role == "user" {
		e.memory.Update(id, turn.Content)
	}

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := history.Message{Timestamp: ts, Role: turn.Role, Content: turn.Content}
	e.history.AddMessage(id, msg)

	saved := true
	if err := e.history.AddMessageAndSave(id, msg); err != nil {
		log.Printf("[engine] persist turn for %s: %v", id, err)
		saved = false
	}

	return bus.TurnResult{
		SessionID:    id,
		MemoryDigest: e.memory.Retrieve(id, turn.Content).Summary,
		Saved:        saved,
	}
}

// RetrieveMemory returns the formatted memory digest for a query;
// empty string when the session has no memories.
func (e *Engine) RetrieveMemory(id, query string) string {
	return e.memory.Retrieve(id, query).Summary
}

// EndSession flushes the transcript to both layouts and removes the
// session. Returns the archive path, "" when nothing was buffered.
func (e *Engine) EndSession(id string) (string, error) {
	archivePath, err := e.history.EndConversation(id)
	e.sessions.End(id)
	return archivePath, err
}

// GetHistory returns the session transcript; read-only, no activity
// refresh on the history side (the registry read still counts).
func (e *Engine) GetHistory(id string) []history.Message {
	return e.history.LoadHistory(id)
}

// SetPersona records the active persona for a session. Unknown ids are
// stored verbatim; interpreting them is the prompt layer's concern.
func (e *Engine) SetPersona(id, personaID string) {
	e.sessions.SetPersona(id, personaID)
}

// MemoryStats reports per-session memory counts.
func (e *Engine) MemoryStats(id string) memory.Stats {
	return e.memory.Stats(id)
}

// Stats is an engine-level observability snapshot.
type Stats struct {
	ActiveSessions int
}

func (e *Engine) Stats() Stats {
	return Stats{ActiveSessions: e.sessions.ActiveCount()}
}
