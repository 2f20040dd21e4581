package modelsvc

import (
	"context"
	"fmt"
	"strings"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/service"
)

type sentimentRequest struct {
	Texts []string `json:"texts"`
}

type sentimentResponse struct {
	Results []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// HTTPSentimentScorer classifies texts with the model service's financial
// sentiment classifier.
type HTTPSentimentScorer struct{ base *HTTPServiceBase }

func NewHTTPSentimentScorer(base *HTTPServiceBase) *HTTPSentimentScorer {
	return &HTTPSentimentScorer{base: base}
}

func (s *HTTPSentimentScorer) Score(ctx context.Context, texts []string) ([]models.SentimentResult, error) {
	if len(texts) == 0 {
		return []models.SentimentResult{}, nil
	}
	var resp sentimentResponse
	if err := s.base.PostJSONWithRetry(ctx, "/v1/sentiment", sentimentRequest{Texts: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(texts) {
		return nil, fmt.Errorf("sentiment returned %d results for %d texts", len(resp.Results), len(texts))
	}
	out := make([]models.SentimentResult, len(texts))
	for i, r := range resp.Results {
		out[i] = SignedResult(r.Label, r.Score)
	}
	return out, nil
}

// SignedResult maps a classifier label and confidence to a signed score.
func SignedResult(label string, confidence float64) models.SentimentResult {
	res := models.SentimentResult{Label: strings.ToUpper(label), Confidence: confidence}
	switch res.Label {
	case "POSITIVE":
		res.Score = confidence
	case "NEGATIVE":
		res.Score = -confidence
	}
	return res
}

var _ service.SentimentScorer = (*HTTPSentimentScorer)(nil)
