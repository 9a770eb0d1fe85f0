package export

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/simonyos/roundtable/internal/orchestrator"
)

const topWordLimit = 10

// tokensPerWord approximates tokens from a word count.
const tokensPerWord = 1.3

var stopWords = toSet(
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could",
	"should", "may", "might", "shall", "can", "to", "of", "in", "for",
	"on", "with", "at", "by", "from", "as", "into", "through", "during",
	"before", "after", "above", "below", "between", "and", "but", "or",
	"nor", "not", "so", "yet", "both", "either", "neither", "each",
	"every", "all", "any", "few", "more", "most", "other", "some", "such",
	"no", "only", "own", "same", "than", "too", "very", "just", "because",
	"about", "that", "this", "these", "those", "it", "its", "i", "me",
	"my", "we", "our", "you", "your", "he", "him", "his", "she", "her",
	"they", "them", "their", "what", "which", "who", "whom", "how", "when",
	"where", "why",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// PersonaStats summarizes one speaker.
type PersonaStats struct {
	PersonaID string `json:"personaId"`
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Words     int    `json:"words"`
}

// AverageWords is the mean message length in words.
func (p PersonaStats) AverageWords() int {
	if p.Messages == 0 {
		return 0
	}
	return int(math.Round(float64(p.Words) / float64(p.Messages)))
}

// WordCount is a word and its frequency.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Stats summarizes a transcript.
type Stats struct {
	TotalMessages   int            `json:"totalMessages"`
	TotalWords      int            `json:"totalWords"`
	EstimatedTokens int            `json:"estimatedTokens"`
	Duration        time.Duration  `json:"duration"`
	Personas        []PersonaStats `json:"personas"`
	TopWords        []WordCount    `json:"topWords"`
}

// ComputeStats derives transcript statistics. Personas appear in order of first message.
func ComputeStats(msgs []orchestrator.Message) Stats {
	stats := Stats{
		TotalMessages: len(msgs),
		Personas:      []PersonaStats{},
		TopWords:      []WordCount{},
	}
	if len(msgs) == 0 {
		return stats
	}

	personaIndex := make(map[string]int)
	wordIndex := make(map[string]int)
	first, last := msgs[0].CreatedAt, msgs[0].CreatedAt

	for _, msg := range msgs {
		if msg.CreatedAt.Before(first) {
			first = msg.CreatedAt
		}
		if msg.CreatedAt.After(last) {
			last = msg.CreatedAt
		}

		i, ok := personaIndex[msg.PersonaID]
		if !ok {
			i = len(stats.Personas)
			personaIndex[msg.PersonaID] = i
			stats.Personas = append(stats.Personas, PersonaStats{PersonaID: msg.PersonaID, Name: msg.PersonaName})
		}

		words := Words(msg.Content)
		stats.Personas[i].Messages++
		stats.Personas[i].Words += len(words)
		stats.TotalWords += len(words)

		for _, w := range words {
			if len(w) <= 1 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			j, ok := wordIndex[w]
			if !ok {
				j = len(stats.TopWords)
				wordIndex[w] = j
				stats.TopWords = append(stats.TopWords, WordCount{Word: w})
			}
			stats.TopWords[j].Count++
		}
	}

	sort.SliceStable(stats.TopWords, func(a, b int) bool {
		return stats.TopWords[a].Count > stats.TopWords[b].Count
	})
	if len(stats.TopWords) > topWordLimit {
		stats.TopWords = stats.TopWords[:topWordLimit]
	}

	stats.EstimatedTokens = int(math.Round(float64(stats.TotalWords) * tokensPerWord))
	stats.Duration = last.Sub(first)
	return stats
}

// Words lowercases content, drops everything except ASCII letters, digits and
// whitespace, and splits on whitespace.
func Words(content string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', unicode.IsSpace(r):
			return r
		}
		return -1
	}, strings.ToLower(content))
	return strings.Fields(cleaned)
}

// FormatDuration renders d as "1h 5m" or "4m 12s".
func FormatDuration(d time.Duration) string {
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
