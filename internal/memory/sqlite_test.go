package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lumichat/murmur/internal/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDBRoundTrip(t *testing.T) {
	db := openTestDB(t)

	created := time.Date(2026, 8, 20, 10, 30, 0, 0, time.Local)
	item := &Item{
		ID:         "mem_S1_preference_1",
		SessionID:  "S1",
		Content:    "我喜欢打篮球",
		Type:       TypePreference,
		Importance: 5,
		Keywords:   []string{"我喜欢打篮球"},
		CreatedAt:  created,
		Active:     true,
	}
	if err := db.Insert(item); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	loaded, err := db.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	ls := loaded["S1"]
	if ls == nil || len(ls.Items) != 1 || ls.Total != 1 {
		t.Fatalf("loaded=%+v", ls)
	}
	got := ls.Items[0]
	if got.Content != item.Content || got.Type != item.Type || got.Importance != 5 {
		t.Fatalf("item=%+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("createdAt=%v, want %v", got.CreatedAt, created)
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "我喜欢打篮球" {
		t.Fatalf("keywords=%v", got.Keywords)
	}
}

func TestDBTouchAndDeactivate(t *testing.T) {
	db := openTestDB(t)

	now := time.Date(2026, 8, 21, 9, 0, 0, 0, time.Local)
	for _, id := range []string{"a", "b"} {
		item := &Item{ID: id, SessionID: "S1", Content: "content " + id, Type: TypeEvent, Importance: 5, CreatedAt: now, Active: true}
		if err := db.Insert(item); err != nil {
			t.Fatalf("Insert(%s) error: %v", id, err)
		}
	}

	used := now.Add(time.Hour)
	if err := db.Touch("a", used, 3); err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	if err := db.Deactivate("b"); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}

	loaded, err := db.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	ls := loaded["S1"]
	if ls.Total != 2 {
		t.Fatalf("total=%d, want 2", ls.Total)
	}
	if len(ls.Items) != 1 || ls.Items[0].ID != "a" {
		t.Fatalf("active items=%+v, want only a", ls.Items)
	}
	if ls.Items[0].AccessCount != 3 || !ls.Items[0].LastUsedAt.Equal(used) {
		t.Fatalf("touched item=%+v", ls.Items[0])
	}
}

func TestStoreRestoresFromDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}

	first := NewStore(config.MemoryConfig{}, db)
	if stored := first.Update("S1", "我叫小明，我喜欢打篮球"); stored != 2 {
		t.Fatalf("stored=%d", stored)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	db2, err := OpenDB(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db2.Close()

	second := NewStore(config.MemoryConfig{}, db2)
	stats := second.Stats("S1")
	if stats.Total != 2 || stats.Active != 2 {
		t.Fatalf("restored stats=%+v", stats)
	}
	result := second.Retrieve("S1", "篮球")
	if len(result.Items) == 0 || result.Items[0].Content != "我喜欢打篮球" {
		t.Fatalf("restored retrieve=%+v", result)
	}
}
