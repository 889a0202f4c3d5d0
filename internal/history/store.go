package history

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	timeLayout        = "2006-01-02 15:04:05"
	archiveNameLayout = "20060102_150405"

	liveDirName    = "sessions"
	archiveDirName = "conversations"
)

// Message is one role-tagged transcript entry.
type Message struct {
	Timestamp time.Time
	Role      string
	Content   string
}

// record is the on-disk shape shared by both layouts.
type record struct {
	Timestamp string `json:"timestamp"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// Store persists transcripts under two layouts: a per-session live file
// rewritten in full on every save, and a date-partitioned archive where
// every save creates a new snapshot file.
type Store struct {
	baseDir    string
	windowDays int

	conversations sync.Map // session id -> *conversation

	nowFn func() time.Time
}

// conversation is a session's in-memory buffer. Its mutex also
// serializes live-file read-modify-write for the session.
type conversation struct {
	mu       sync.Mutex
	messages []Message
}

func NewStore(baseDir string, archiveWindowDays int) *Store {
	if archiveWindowDays <= 0 {
		archiveWindowDays = 7
	}
	return &Store{
		baseDir:    baseDir,
		windowDays: archiveWindowDays,
		nowFn:      time.Now,
	}
}

func (s *Store) livePath(sessionID string) string {
	return filepath.Join(s.baseDir, liveDirName, sessionID+"_history.json")
}

func (s *Store) archiveDay(t time.Time) string {
	return filepath.Join(s.baseDir, archiveDirName,
		t.Format("2006"), t.Format("01"), t.Format("02"))
}

func (s *Store) conversation(sessionID string) *conversation {
	actual, _ := s.conversations.LoadOrStore(sessionID, &conversation{})
	return actual.(*conversation)
}

// StartConversation ensures an in-memory buffer exists for the session.
func (s *Store) StartConversation(sessionID string) {
	s.conversation(sessionID)
}

// AddMessage appends to the in-memory buffer only; no I/O.
func (s *Store) AddMessage(sessionID string, msg Message) {
	conv := s.conversation(sessionID)
	conv.mu.Lock()
	conv.messages = append(conv.messages, msg)
	conv.mu.Unlock()
}

// AddMessageAndSave appends msg to the persisted live layout
// immediately: load the current list, append, rewrite the whole file.
// The write is serialized per session id.
func (s *Store) AddMessageAndSave(sessionID string, msg Message) error {
	conv := s.conversation(sessionID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	persisted, _ := s.readFile(s.livePath(sessionID))
	persisted = append(persisted, msg)
	if err := s.writeFile(s.livePath(sessionID), persisted); err != nil {
		return fmt.Errorf("save live history: %w", err)
	}
	return nil
}

// LoadHistory returns the session transcript, trying the in-memory
// buffer, then the live layout, then the recent archive. Empty list,
// never an error.
func (s *Store) LoadHistory(sessionID string) []Message {
	if v, ok := s.conversations.Load(sessionID); ok {
		conv := v.(*conversation)
		conv.mu.Lock()
		if len(conv.messages) > 0 {
			out := make([]Message, len(conv.messages))
			copy(out, conv.messages)
			conv.mu.Unlock()
			return out
		}
		conv.mu.Unlock()
	}

	if msgs, ok := s.readFile(s.livePath(sessionID)); ok && len(msgs) > 0 {
		return msgs
	}

	return s.searchArchive(sessionID)
}

// searchArchive scans the date-partitioned layout back through the
// configured window, newest day first.
func (s *Store) searchArchive(sessionID string) []Message {
	now := s.nowFn()
	prefix := sessionID + "_"
	for i := 0; i < s.windowDays; i++ {
		day := s.archiveDay(now.AddDate(0, 0, -i))
		entries, err := os.ReadDir(day)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".json") {
				names = append(names, name)
			}
		}
		// Latest snapshot first; filenames embed the save timestamp.
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
		for _, name := range names {
			if msgs, ok := s.readFile(filepath.Join(day, name)); ok && len(msgs) > 0 {
				return msgs
			}
		}
	}
	return []Message{}
}

// EndConversation flushes the buffer to both layouts and drops the
// buffer. Returns the archive path, or "" when nothing was buffered.
// The two writes are independent; a live-layout failure is logged and
// does not block the archive write.
func (s *Store) EndConversation(sessionID string) (string, error) {
	v, ok := s.conversations.Load(sessionID)
	if !ok {
		return "", nil
	}
	conv := v.(*conversation)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	if len(conv.messages) == 0 {
		s.conversations.Delete(sessionID)
		return "", nil
	}
	msgs := make([]Message, len(conv.messages))
	copy(msgs, conv.messages)

	if err := s.writeFile(s.livePath(sessionID), msgs); err != nil {
		log.Printf("[history] flush live layout for %s: %v", sessionID, err)
	}

	now := s.nowFn()
	archivePath := filepath.Join(s.archiveDay(now),
		fmt.Sprintf("%s_%s.json", sessionID, now.Format(archiveNameLayout)))
	if err := s.writeFile(archivePath, msgs); err != nil {
		conv.messages = nil
		s.conversations.Delete(sessionID)
		return "", fmt.Errorf("flush archive layout: %w", err)
	}

	conv.messages = nil
	s.conversations.Delete(sessionID)
	return archivePath, nil
}

// DeleteHistory removes the buffer and the live file. Past archive
// snapshots are untouched.
func (s *Store) DeleteHistory(sessionID string) bool {
	_, buffered := s.conversations.LoadAndDelete(sessionID)
	err := os.Remove(s.livePath(sessionID))
	if err != nil && !os.IsNotExist(err) {
		log.Printf("[history] delete live layout for %s: %v", sessionID, err)
	}
	return buffered || err == nil
}

// BufferLen reports the in-memory buffer size for a session.
func (s *Store) BufferLen(sessionID string) int {
	v, ok := s.conversations.Load(sessionID)
	if !ok {
		return 0
	}
	conv := v.(*conversation)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return len(conv.messages)
}

// readFile parses one layout file. Missing or corrupt files read as
// absent so the caller can continue down the fallback chain.
func (s *Store) readFile(path string) ([]Message, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[history] read %s: %v", path, err)
		}
		return nil, false
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		log.Printf("[history] corrupt history file %s: %v", path, err)
		return nil, false
	}
	msgs := make([]Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, r.toMessage())
	}
	return msgs, true
}

func (s *Store) writeFile(path string, msgs []Message) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	records := make([]record, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, record{
			Timestamp: m.Timestamp.Format(timeLayout),
			Role:      m.Role,
			Content:   m.Content,
		})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// toMessage substitutes now for an unparsable timestamp rather than
// rejecting the record.
func (r record) toMessage() Message {
	t, err := time.ParseInLocation(timeLayout, r.Timestamp, time.Local)
	if err != nil {
		t = time.Now()
	}
	return Message{Timestamp: t, Role: r.Role, Content: r.Content}
}
