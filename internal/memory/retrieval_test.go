package memory

import (
	"testing"
	"time"
)

func TestRelevanceScore(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name  string
		item  Item
		query string
		want  int
	}{
		{
			name:  "substring match dominates",
			item:  Item{Content: "我喜欢打篮球", Importance: 5, CreatedAt: now},
			query: "篮球",
			want:  10 + 5 + 10,
		},
		{
			name:  "no match keeps importance and recency",
			item:  Item{Content: "我叫小明", Importance: 6, CreatedAt: now},
			query: "篮球",
			want:  6 + 10,
		},
		{
			name: "keyword overlap and capped access count",
			item: Item{
				Content:     "I like basketball",
				Keywords:    []string{"like", "basketball"},
				Importance:  5,
				AccessCount: 7,
				CreatedAt:   now.Add(-3 * 24 * time.Hour),
			},
			query: "do you remember basketball",
			want:  5 + 5 + 5 + 7,
		},
		{
			name:  "recency decays to zero after ten days",
			item:  Item{Content: "old fact about me", Importance: 4, CreatedAt: now.Add(-30 * 24 * time.Hour)},
			query: "unrelated",
			want:  4,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := relevanceScore(&tc.item, tc.query, now); got != tc.want {
				t.Fatalf("relevanceScore=%d, want %d", got, tc.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize(nil); got != "" {
		t.Fatalf("empty summary=%q", got)
	}
	got := summarize([]Item{{Content: "我喜欢打篮球"}, {Content: "我叫小明"}})
	want := "- 我喜欢打篮球\n- 我叫小明"
	if got != want {
		t.Fatalf("summary=%q, want %q", got, want)
	}
}
