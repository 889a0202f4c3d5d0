package memory

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Marker phrases driving heuristic extraction. Lexical by design; an
// embedding-based extractor can replace this behind the same Store API.
var (
	selfMarkers = []string{
		"我叫", "我是", "我的名字", "我今年",
		"my name is", "i am", "i'm",
	}
	preferenceMarkers = []string{
		"我喜欢", "我不喜欢", "我讨厌", "我爱", "我习惯",
		"i like", "i love", "i hate", "i dislike", "i prefer", "i enjoy",
	}
	emphasisMarkers = []string{
		"记住", "记得", "重要", "别忘了",
		"remember", "important", "don't forget",
	}
	relationshipMarkers = []string{
		"朋友", "家人", "同事", "父母", "妈妈", "爸爸", "老婆", "老公",
		"friend", "family", "colleague", "wife", "husband", "mother", "father",
	}
)

const (
	minSentenceLen = 10
	minContentLen  = 5
	maxContentLen  = 200
	maxKeywords    = 5
	baseImportance = 5
)

func isSentenceTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?', '，', ',', '、', '；', ';', '\n':
		return true
	}
	return false
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, isSentenceTerminator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// extractCandidates returns the sentences of turnText worth remembering.
func extractCandidates(turnText string) []string {
	candidates := make([]string, 0)
	for _, sentence := range splitSentences(turnText) {
		if len(sentence) <= minSentenceLen {
			continue
		}
		lower := strings.ToLower(sentence)
		if !containsAny(lower, selfMarkers) &&
			!containsAny(lower, preferenceMarkers) &&
			!containsAny(lower, emphasisMarkers) {
			continue
		}
		if len(sentence) <= minContentLen || len(sentence) >= maxContentLen {
			continue
		}
		candidates = append(candidates, sentence)
	}
	return candidates
}

// classify tags a candidate. Order matters: preference before fact
// before relationship.
func classify(content string) string {
	lower := strings.ToLower(content)
	switch {
	case containsAny(lower, preferenceMarkers):
		return TypePreference
	case containsAny(lower, selfMarkers):
		return TypeFact
	case containsAny(lower, relationshipMarkers):
		return TypeRelationship
	default:
		return TypeEvent
	}
}

// scoreImportance rates a candidate on the 1..10 scale.
func scoreImportance(content string) int {
	lower := strings.ToLower(content)
	score := baseImportance
	if containsAny(lower, emphasisMarkers) {
		score += 2
	}
	if containsAny(lower, selfMarkers) {
		score++
	}
	if len(content) > 50 {
		score++
	}
	return clampImportance(score)
}

func clampImportance(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

// extractKeywords keeps up to maxKeywords distinct alphanumeric tokens
// longer than one rune, in first-seen order.
func extractKeywords(content string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, content)

	keywords := make([]string, 0, maxKeywords)
	seen := map[string]struct{}{}
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) <= 1 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// EstimateTokens approximates the token cost of text. CJK characters
// weigh more than latin words.
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	chineseChars := 0
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			chineseChars++
		}
	}
	words := len(strings.Fields(text))
	estimate := int(float64(chineseChars)*1.5 + float64(words)*0.75)
	if estimate < 1 {
		return 1
	}
	return estimate
}
