package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/lumichat/murmur/internal/bus"
)

const (
	StatusActive  = "active"
	StatusIdle    = "idle"
	StatusExpired = "expired"
)

// Session is the ephemeral per-conversation state. All fields are guarded
// by mu; callers outside this package only ever see snapshots.
type Session struct {
	mu                 sync.Mutex
	id                 string
	createdAt          time.Time
	lastActiveAt       time.Time
	status             string
	tokenCountEstimate int
	activePersonaID    string
}

func (s *Session) snapshot() bus.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bus.SessionSnapshot{
		SessionID:          s.id,
		CreatedAt:          s.createdAt,
		LastActiveAt:       s.lastActiveAt,
		Status:             s.status,
		TokenCountEstimate: s.tokenCountEstimate,
		ActivePersonaID:    s.activePersonaID,
	}
}

// Registry maps session ids to live sessions and expires idle ones on a
// recurring sweep. Safe for concurrent use from multiple turn workers.
type Registry struct {
	sessions   sync.Map // session id -> *Session
	timeout    time.Duration
	sweepEvery time.Duration

	mu   sync.Mutex
	cron *rcron.Cron

	nowFn func() time.Time
}

func NewRegistry(timeout, sweepEvery time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &Registry{
		timeout:    timeout,
		sweepEvery: sweepEvery,
		nowFn:      time.Now,
	}
}

// GetOrCreate returns the session for id, creating it if absent. An
// existing session has its last-active timestamp refreshed.
func (r *Registry) GetOrCreate(id string) bus.SessionSnapshot {
	now := r.nowFn()
	fresh := &Session{
		id:           id,
		createdAt:    now,
		lastActiveAt: now,
		status:       StatusActive,
	}
	actual, loaded := r.sessions.LoadOrStore(id, fresh)
	sess := actual.(*Session)
	if loaded {
		r.touch(sess, now)
	}
	return sess.snapshot()
}

// Get looks up a session without creating one. A successful read counts
// as activity and refreshes the last-active timestamp.
func (r *Registry) Get(id string) (bus.SessionSnapshot, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return bus.SessionSnapshot{}, false
	}
	sess := v.(*Session)
	r.touch(sess, r.nowFn())
	return sess.snapshot(), true
}

// End removes the session immediately, independent of the sweep.
func (r *Registry) End(id string) {
	r.sessions.Delete(id)
}

// AddTokens increments the session's running token-count estimate,
// creating the session if needed.
func (r *Registry) AddTokens(id string, tokens int) {
	r.GetOrCreate(id)
	v, ok := r.sessions.Load(id)
	if !ok {
		return
	}
	sess := v.(*Session)
	sess.mu.Lock()
	sess.tokenCountEstimate += tokens
	sess.mu.Unlock()
}

// SetPersona records the active persona for the session, creating the
// session if needed.
func (r *Registry) SetPersona(id, personaID string) {
	r.GetOrCreate(id)
	v, ok := r.sessions.Load(id)
	if !ok {
		return
	}
	sess := v.(*Session)
	sess.mu.Lock()
	sess.activePersonaID = personaID
	sess.mu.Unlock()
}

func (r *Registry) ActiveCount() int {
	count := 0
	r.sessions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (r *Registry) touch(sess *Session, now time.Time) {
	sess.mu.Lock()
	sess.lastActiveAt = now
	sess.status = StatusActive
	sess.mu.Unlock()
}

// Sweep removes every session idle longer than the configured timeout.
// It returns the number of sessions expired.
func (r *Registry) Sweep() int {
	now := r.nowFn()
	expired := 0
	r.sessions.Range(func(key, value any) bool {
		sess := value.(*Session)
		sess.mu.Lock()
		idle := now.Sub(sess.lastActiveAt) > r.timeout
		if idle {
			sess.status = StatusExpired
		}
		sess.mu.Unlock()
		if idle {
			r.sessions.Delete(key)
			expired++
		}
		return true
	})
	if expired > 0 {
		log.Printf("[session] sweep expired %d sessions", expired)
	}
	return expired
}

// Start schedules the recurring sweep. It stops when ctx is cancelled or
// Stop is called.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cron != nil {
		r.mu.Unlock()
		return nil
	}
	c := rcron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", r.sweepEvery), func() { r.Sweep() }); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	r.cron = c
	r.mu.Unlock()

	c.Start()
	log.Printf("[session] sweep scheduled every %s (timeout %s)", r.sweepEvery, r.timeout)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

func (r *Registry) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[session] stop timeout waiting for sweep")
	}
}
