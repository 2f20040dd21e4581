package sentiment

import (
	"context"
	"strings"
	"unicode"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/service"
)

var (
	positiveTerms = []string{
		"beat", "beats", "surge", "surges", "soar", "soars", "rally", "rallies", "gain", "gains",
		"record", "upgrade", "upgraded", "outperform", "growth", "profit", "profits", "strong",
		"bullish", "raises", "raised", "rebound", "jump", "jumps", "boost", "tops",
	}
	negativeTerms = []string{
		"miss", "misses", "plunge", "plunges", "slump", "slumps", "fall", "falls", "drop", "drops",
		"downgrade", "downgraded", "underperform", "loss", "losses", "weak", "bearish", "cuts",
		"lawsuit", "probe", "recall", "warning", "warns", "decline", "declines", "layoffs",
	}
)

// LexiconScorer is a dictionary-based classifier used when no model service
// is configured. Confidence grows with the share of polar terms.
type LexiconScorer struct {
	pos map[string]struct{}
	neg map[string]struct{}
}

func NewLexiconScorer() *LexiconScorer {
	s := &LexiconScorer{pos: make(map[string]struct{}), neg: make(map[string]struct{})}
	for _, w := range positiveTerms {
		s.pos[w] = struct{}{}
	}
	for _, w := range negativeTerms {
		s.neg[w] = struct{}{}
	}
	return s
}

func (s *LexiconScorer) Score(_ context.Context, texts []string) ([]models.SentimentResult, error) {
	out := make([]models.SentimentResult, len(texts))
	for i, text := range texts {
		out[i] = s.classify(text)
	}
	return out, nil
}

func (s *LexiconScorer) classify(text string) models.SentimentResult {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	var pos, neg int
	for _, w := range words {
		if _, ok := s.pos[w]; ok {
			pos++
		}
		if _, ok := s.neg[w]; ok {
			neg++
		}
	}
	polar := pos + neg
	if polar == 0 || pos == neg {
		return models.SentimentResult{Label: "NEUTRAL", Confidence: 1}
	}
	conf := float64(max(pos, neg)) / float64(polar)
	if pos > neg {
		return models.SentimentResult{Label: "POSITIVE", Confidence: conf, Score: conf}
	}
	return models.SentimentResult{Label: "NEGATIVE", Confidence: conf, Score: -conf}
}

var _ service.SentimentScorer = (*LexiconScorer)(nil)
