package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02 15:04:05"

// DB is the durable sqlite backing for memory items. The in-memory
// working sets remain authoritative; the database exists so items
// survive process restarts.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenDB(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	d := &DB{db: db}
	if err := d.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := d.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := d.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (d *DB) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'event',
			importance INTEGER NOT NULL DEFAULT 5,
			keywords TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_used TEXT NOT NULL DEFAULT '',
			access_count INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_session ON memory_items(session_id, active)`,
		`CREATE INDEX IF NOT EXISTS idx_items_created ON memory_items(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Insert(item *Item) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO memory_items (id, session_id, content, type, importance, keywords, created_at, last_used, access_count, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.SessionID, item.Content, item.Type, item.Importance,
		strings.Join(item.Keywords, ","), item.CreatedAt.Format(timeLayout),
		formatLastUsed(item.LastUsedAt), item.AccessCount, boolToInt(item.Active))
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (d *DB) Touch(id string, lastUsed time.Time, accessCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		UPDATE memory_items SET last_used = ?, access_count = ? WHERE id = ?
	`, lastUsed.Format(timeLayout), accessCount, id)
	if err != nil {
		return fmt.Errorf("touch item: %w", err)
	}
	return nil
}

func (d *DB) Deactivate(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`UPDATE memory_items SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate item: %w", err)
	}
	return nil
}

// LoadedSession is one session's persisted state: its active items in
// creation order plus the all-time item count.
type LoadedSession struct {
	Items []*Item
	Total int
}

// Load reads every persisted item, grouped by session. Inactive rows
// count toward totals but stay out of the working set.
func (d *DB) Load() (map[string]*LoadedSession, error) {
	rows, err := d.db.Query(`
		SELECT id, session_id, content, type, importance, keywords, created_at, last_used, access_count, active
		FROM memory_items
		ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*LoadedSession)
	for rows.Next() {
		var item Item
		var keywords, createdAt, lastUsed string
		var active int
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Content, &item.Type,
			&item.Importance, &keywords, &createdAt, &lastUsed, &item.AccessCount, &active); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Importance = clampImportance(item.Importance)
		if keywords != "" {
			item.Keywords = strings.Split(keywords, ",")
		}
		item.CreatedAt = parseTime(createdAt)
		if lastUsed != "" {
			item.LastUsedAt = parseTime(lastUsed)
		}
		item.Active = active == 1

		ls := result[item.SessionID]
		if ls == nil {
			ls = &LoadedSession{}
			result[item.SessionID] = ls
		}
		ls.Total++
		if item.Active {
			ls.Items = append(ls.Items, &item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return result, nil
}

func formatLastUsed(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

// parseTime falls back to now for unparsable timestamps rather than
// rejecting the row.
func parseTime(value string) time.Time {
	t, err := time.ParseInLocation(timeLayout, value, time.Local)
	if err != nil {
		return time.Now()
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
