package sentiment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/service"
	"QuantLens/internal/services/analytics"
	"QuantLens/pkg/cache"
	"QuantLens/pkg/logger"
	"QuantLens/pkg/util"
)

const resultTTL = 24 * time.Hour

// CachedScorer serialises access to an underlying scorer and memoises
// results by the first maxTextLen characters of each text.
type CachedScorer struct {
	mu         sync.Mutex
	inner      service.SentimentScorer
	cache      cache.Service
	maxTextLen int
	log        *logger.Logger
}

func NewCachedScorer(inner service.SentimentScorer, c cache.Service, maxTextLen int, log *logger.Logger) *CachedScorer {
	if maxTextLen <= 0 {
		maxTextLen = 512
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedScorer{inner: inner, cache: c, maxTextLen: maxTextLen, log: log}
}

func (s *CachedScorer) Score(ctx context.Context, texts []string) ([]models.SentimentResult, error) {
	out := make([]models.SentimentResult, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]string, len(texts))
	pending := make(map[string][]int)
	var missTexts []string
	for i, text := range texts {
		truncated := util.Truncate(text, s.maxTextLen)
		keys[i] = cache.GenerateKey("sentiment", cache.HashKey(truncated))
		if err := s.cache.Get(ctx, keys[i], &out[i]); err == nil {
			continue
		}
		if _, seen := pending[keys[i]]; !seen {
			missTexts = append(missTexts, truncated)
		}
		pending[keys[i]] = append(pending[keys[i]], i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	results, err := s.scoreLocked(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(results) != len(missTexts) {
		return nil, fmt.Errorf("scorer returned %d results for %d texts", len(results), len(missTexts))
	}

	for k, text := range missTexts {
		key := cache.GenerateKey("sentiment", cache.HashKey(text))
		if err := s.cache.Set(ctx, key, results[k], resultTTL); err != nil {
			s.log.Debug("sentiment cache write failed", logger.Error(err))
		}
		for _, i := range pending[key] {
			out[i] = results[k]
		}
	}
	s.log.Debug("sentiment scored",
		logger.Int("texts", len(texts)),
		logger.Int("cache_misses", len(missTexts)),
	)
	return out, nil
}

func (s *CachedScorer) scoreLocked(ctx context.Context, texts []string) ([]models.SentimentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Score(ctx, texts)
}

// SymbolScores scores every article in one batch and averages per symbol.
// Symbols without articles are absent from the result.
func SymbolScores(ctx context.Context, scorer service.SentimentScorer, articles map[string][]models.NewsArticle) (map[string]float64, error) {
	type ref struct {
		symbol string
		n      int
	}
	var (
		texts []string
		refs  []ref
	)
	for sym, list := range articles {
		if len(list) == 0 {
			continue
		}
		for _, a := range list {
			texts = append(texts, a.Text())
		}
		refs = append(refs, ref{symbol: sym, n: len(list)})
	}
	if len(texts) == 0 {
		return map[string]float64{}, nil
	}

	results, err := scorer.Score(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("score news: %w", err)
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("scorer returned %d results for %d texts", len(results), len(texts))
	}

	perSymbol := make(map[string][]float64, len(refs))
	offset := 0
	for _, r := range refs {
		for _, res := range results[offset : offset+r.n] {
			perSymbol[r.symbol] = append(perSymbol[r.symbol], res.Score)
		}
		offset += r.n
	}
	return analytics.AggregateSentiment(perSymbol), nil
}

var _ service.SentimentScorer = (*CachedScorer)(nil)
