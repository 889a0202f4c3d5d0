package memory

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/lumichat/murmur/internal/config"
)

// Store holds the per-session memory working sets. Items passing the
// importance threshold are written through to the sqlite backing when
// one is attached; sqlite failures are logged and never block a turn.
type Store struct {
	capacity  int
	threshold int
	topK      int
	db        *DB

	sessions sync.Map // session id -> *sessionItems

	nowFn func() time.Time
}

// sessionItems is one session's active working set, insertion-ordered.
type sessionItems struct {
	mu    sync.Mutex
	items []*Item
	total int // items ever recorded, including deactivated ones
}

func NewStore(cfg config.MemoryConfig, db *DB) *Store {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = config.DefaultMemoryCapacity
	}
	threshold := cfg.ImportanceThreshold
	if threshold <= 0 {
		threshold = config.DefaultImportanceThreshold
	}
	topK := cfg.RetrievalLimit
	if topK <= 0 {
		topK = config.DefaultRetrievalLimit
	}

	s := &Store{
		capacity:  capacity,
		threshold: threshold,
		topK:      topK,
		db:        db,
		nowFn:     time.Now,
	}
	s.reload()
	return s
}

// reload restores the working sets from the sqlite backing.
func (s *Store) reload() {
	if s.db == nil {
		return
	}
	loaded, err := s.db.Load()
	if err != nil {
		log.Printf("[memory] reload from db: %v", err)
		return
	}
	restored := 0
	for sessionID, ls := range loaded {
		s.sessions.Store(sessionID, &sessionItems{items: ls.Items, total: ls.Total})
		restored += len(ls.Items)
	}
	if restored > 0 {
		log.Printf("[memory] restored %d active items across %d sessions", restored, len(loaded))
	}
}

func (s *Store) session(sessionID string) *sessionItems {
	actual, _ := s.sessions.LoadOrStore(sessionID, &sessionItems{})
	return actual.(*sessionItems)
}

// Update extracts memory items from turnText, stores those passing the
// importance threshold, and evicts past capacity. Returns the number of
// items stored.
func (s *Store) Update(sessionID, turnText string) int {
	candidates := extractCandidates(turnText)
	if len(candidates) == 0 {
		return 0
	}

	sm := s.session(sessionID)
	sm.mu.Lock()
	defer sm.mu.Unlock()

	stored := 0
	for _, content := range candidates {
		importance := scoreImportance(content)
		if importance < s.threshold {
			continue
		}
		created := s.nowFn()
		itemType := classify(content)
		item := &Item{
			ID:         itemID(sessionID, itemType, created),
			SessionID:  sessionID,
			Content:    content,
			Type:       itemType,
			Importance: importance,
			Keywords:   extractKeywords(content),
			CreatedAt:  created,
			Active:     true,
		}
		sm.items = append(sm.items, item)
		sm.total++
		stored++
		if s.db != nil {
			if err := s.db.Insert(item); err != nil {
				log.Printf("[memory] persist item %s: %v", item.ID, err)
			}
		}
	}
	if stored > 0 {
		s.evictLocked(sm)
	}
	return stored
}

// evictLocked deactivates the lowest-value items beyond capacity.
// Kept items stay in insertion order. Caller holds sm.mu.
func (s *Store) evictLocked(sm *sessionItems) {
	if len(sm.items) <= s.capacity {
		return
	}

	ranked := make([]*Item, len(sm.items))
	copy(ranked, sm.items)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Importance != ranked[j].Importance {
			return ranked[i].Importance > ranked[j].Importance
		}
		return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
	})

	evicted := make(map[*Item]struct{}, len(ranked)-s.capacity)
	for _, item := range ranked[s.capacity:] {
		item.Active = false
		evicted[item] = struct{}{}
		if s.db != nil {
			if err := s.db.Deactivate(item.ID); err != nil {
				log.Printf("[memory] deactivate item %s: %v", item.ID, err)
			}
		}
	}

	kept := sm.items[:0]
	for _, item := range sm.items {
		if _, gone := evicted[item]; !gone {
			kept = append(kept, item)
		}
	}
	for i := len(kept); i < len(sm.items); i++ {
		sm.items[i] = nil
	}
	sm.items = kept
	log.Printf("[memory] evicted %d items for session capacity %d", len(evicted), s.capacity)
}

// Retrieve returns the top items ranked by relevance to query, updating
// access counters on everything returned. Empty result, never an error.
func (s *Store) Retrieve(sessionID, query string) RetrievalResult {
	v, ok := s.sessions.Load(sessionID)
	if !ok {
		return RetrievalResult{}
	}
	sm := v.(*sessionItems)
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.items) == 0 {
		return RetrievalResult{}
	}

	now := s.nowFn()
	type scoredItem struct {
		item  *Item
		score int
	}
	scored := make([]scoredItem, 0, len(sm.items))
	for _, item := range sm.items {
		scored = append(scored, scoredItem{item: item, score: relevanceScore(item, query, now)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	limit := s.topK
	if limit > len(scored) {
		limit = len(scored)
	}
	out := make([]Item, 0, limit)
	for _, sc := range scored[:limit] {
		sc.item.AccessCount++
		sc.item.LastUsedAt = now
		if s.db != nil {
			if err := s.db.Touch(sc.item.ID, now, sc.item.AccessCount); err != nil {
				log.Printf("[memory] touch item %s: %v", sc.item.ID, err)
			}
		}
		out = append(out, *sc.item)
	}
	return RetrievalResult{Items: out, Summary: summarize(out)}
}

// Stats reports total and active item counts for a session.
func (s *Store) Stats(sessionID string) Stats {
	v, ok := s.sessions.Load(sessionID)
	if !ok {
		return Stats{}
	}
	sm := v.(*sessionItems)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return Stats{Total: sm.total, Active: len(sm.items)}
}

func itemID(sessionID, itemType string, created time.Time) string {
	return fmt.Sprintf("mem_%s_%s_%d", sessionID, itemType, created.UnixNano())
}
