package models

import "time"

type NewsArticle struct {
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
}

// Text is what gets scored for sentiment.
func (a NewsArticle) Text() string {
	if a.Snippet == "" {
		return a.Title
	}
	return a.Title + ". " + a.Snippet
}

// SentimentResult is the classifier output for one text. Score is signed:
// +Confidence for positive, -Confidence for negative, 0 otherwise.
type SentimentResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"`
}
