package worker

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/muchacho/personal-manager/internal/schema"
)

// DefaultSummarySentences is the summary length used when none is requested.
const DefaultSummarySentences = 3

// SimilarityThreshold is the score a note must exceed to count as similar.
const SimilarityThreshold = 0.75

// MinPasswordLength is the length below which a password counts as weak.
const MinPasswordLength = 20

var (
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)
	wordPattern     = regexp.MustCompile(`\w+`)
	tickerPattern   = regexp.MustCompile(`\b[A-Z]{3,5}\b`)
)

// Indicators is the technical indicator vocabulary matched by AnalyzeStrategy.
var Indicators = []string{
	"RSI",
	"MACD",
	"EMA",
	"SMA",
	"VWAP",
	"Bollinger Bands",
	"Fibonacci",
	"Ichimoku",
	"Stochastic",
}

// ChartPatterns is the chart pattern vocabulary matched by AnalyzeStrategy.
var ChartPatterns = []string{
	"Head and Shoulders",
	"Double Top",
	"Double Bottom",
	"Cup and Handle",
	"Ascending Triangle",
	"Descending Triangle",
	"Bull Flag",
	"Bear Flag",
	"Wedge",
	"Breakout",
}

var (
	winWords  = []string{"WIN", "PROFIT", "GAINED"}
	lossWords = []string{"LOSS", "STOP LOSS", "LOST"}

	urgencyWords  = []string{"urgent", "important", "must"}
	strategyWords = []string{"trading", "strategy"}
)

// Summarize returns the n highest scoring sentences of text in their
// original order. A sentence scores the mean frequency, across the whole
// text, of the words it contains. Text with n or fewer sentences is
// returned unchanged.
func Summarize(text string, n int) string {
	if text == "" {
		return ""
	}
	if n <= 0 {
		n = DefaultSummarySentences
	}

	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	if len(sentences) <= n {
		return text
	}

	freq := make(map[string]int)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		freq[w]++
	}

	type scored struct {
		text  string
		score float64
		index int
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		words := wordPattern.FindAllString(strings.ToLower(s), -1)
		var total int
		for _, w := range words {
			total += freq[w]
		}
		var score float64
		if len(words) > 0 {
			score = float64(total) / float64(len(words))
		}
		ranked[i] = scored{text: s, score: score, index: i}
	}

	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	top := ranked[:n]
	sort.Slice(top, func(a, b int) bool { return top[a].index < top[b].index })

	parts := make([]string, len(top))
	for i, s := range top {
		parts[i] = strings.TrimSpace(s.text)
	}
	return strings.Join(parts, " ")
}

// CosineSimilarity returns the cosine of the angle between a and b. It is 0
// when the vectors differ in length or either has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, ma, mb float64
	for i := range a {
		dot += a[i] * b[i]
		ma += a[i] * a[i]
		mb += b[i] * b[i]
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return dot / (math.Sqrt(ma) * math.Sqrt(mb))
}

// RankSimilar scores each of others against target and keeps those above
// SimilarityThreshold, in input order. ids is parallel to others.
func RankSimilar(target []float64, others [][]float64, ids []string) []schema.Similarity {
	out := []schema.Similarity{}
	for i, emb := range others {
		score := CosineSimilarity(target, emb)
		if score > SimilarityThreshold && i < len(ids) {
			out = append(out, schema.Similarity{ID: ids[i], Score: score})
		}
	}
	return out
}

// AnalyzeStrategy counts, per note, indicator and chart pattern mentions,
// ticker-like tokens, and win/loss sentiment. Matching is case-insensitive.
func AnalyzeStrategy(notes []schema.Note) schema.Analysis {
	res := schema.Analysis{
		Indicators: map[string]int{},
		Tickers:    map[string]int{},
		Patterns:   map[string]int{},
	}

	excluded := make(map[string]bool, len(Indicators))
	for _, ind := range Indicators {
		excluded[ind] = true
	}

	for _, note := range notes {
		content := strings.ToUpper(note.Content)

		for _, ind := range Indicators {
			if strings.Contains(content, strings.ToUpper(ind)) {
				res.Indicators[ind]++
			}
		}
		for _, p := range ChartPatterns {
			if strings.Contains(content, strings.ToUpper(p)) {
				res.Patterns[p]++
			}
		}
		for _, t := range tickerPattern.FindAllString(content, -1) {
			if !excluded[t] {
				res.Tickers[t]++
			}
		}

		if containsAny(content, winWords) {
			res.Sentiment.Win++
		}
		if containsAny(content, lossWords) {
			res.Sentiment.Loss++
		}
	}
	return res
}

// ScoreTodo computes the additive priority score of t relative to now.
//
//	priority  high +10, medium +5
//	due date  overdue +20, within a day +15, within three days +8
//	keywords  urgent/important/must +5, trading/strategy +3
func ScoreTodo(t schema.Todo, now time.Time) float64 {
	var score float64
	switch t.Priority {
	case schema.PriorityHigh:
		score += 10
	case schema.PriorityMedium:
		score += 5
	}

	if t.DueDate != "" {
		if due, err := time.Parse(schema.DateLayout, t.DueDate); err == nil {
			days := due.Sub(now).Hours() / 24
			switch {
			case days < 0:
				score += 20
			case days < 1:
				score += 15
			case days < 3:
				score += 8
			}
		}
	}

	text := strings.ToLower(t.Text)
	if containsAny(text, urgencyWords) {
		score += 5
	}
	if containsAny(text, strategyWords) {
		score += 3
	}
	return score
}

// PrioritizeTodos returns copies of todos with AIScore set, sorted by score
// descending. Equal scores keep their input order.
func PrioritizeTodos(todos []schema.Todo, now time.Time) []schema.Todo {
	out := make([]schema.Todo, len(todos))
	for i, t := range todos {
		score := ScoreTodo(t, now)
		t.AIScore = &score
		out[i] = t
	}
	sort.SliceStable(out, func(a, b int) bool { return *out[a].AIScore > *out[b].AIScore })
	return out
}

// CheckSecurityHealth scores password values from 100 down: -10 for each
// value shorter than MinPasswordLength and -20 for each repeat of an earlier
// value, never below 0.
func CheckSecurityHealth(passwords []schema.Password) schema.SecurityReport {
	var weak, dup int
	seen := make(map[string]bool, len(passwords))
	for _, p := range passwords {
		if p.Pass != "" && utf8.RuneCountInString(p.Pass) < MinPasswordLength {
			weak++
		}
		if seen[p.Pass] {
			dup++
		}
		seen[p.Pass] = true
	}

	risks := []string{}
	if weak > 0 {
		risks = append(risks, fmt.Sprintf("%d passwords seem too short or weak.", weak))
	}
	if dup > 0 {
		risks = append(risks, fmt.Sprintf("%d duplicate passwords detected.", dup))
	}

	score := 100 - weak*10 - dup*20
	if score < 0 {
		score = 0
	}
	return schema.SecurityReport{Score: score, Risks: risks}
}

// Briefing composes the daily briefing for the given date (YYYY-MM-DD).
// notes[0] is taken as the most recent note.
func Briefing(todos []schema.Todo, notes []schema.Note, today string) string {
	var dueToday, overdue int
	for _, t := range todos {
		if t.IsDone() || t.DueDate == "" {
			continue
		}
		switch {
		case t.DueDate == today:
			dueToday++
		case t.DueDate < today:
			overdue++
		}
	}

	text := fmt.Sprintf("Good day! You have %d tasks due today and %d overdue items. ", dueToday, overdue)
	if len(notes) > 0 {
		title := notes[0].Title
		if title == "" {
			title = "Untitled"
		}
		text += fmt.Sprintf("Your latest strategy note is \"%s\". ", title)
	}
	return text
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
