package news

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"QuantLens/internal/domain/models"
	xhttp "QuantLens/pkg/http"
	"QuantLens/pkg/logger"
	"QuantLens/pkg/util"
)

const (
	newsAPIName        = "newsapi"
	newsAPIMaxPageSize = 20
)

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// NewsAPISource queries the NewsAPI "everything" endpoint.
type NewsAPISource struct {
	httpSource
	apiKey string
}

func NewNewsAPISource(endpoint, apiKey string, client *xhttp.Client, log *logger.Logger, opts ...SourceOption) *NewsAPISource {
	return &NewsAPISource{
		httpSource: newHTTPSource(newsAPIName, endpoint, client, 1500*time.Millisecond, log, opts),
		apiKey:     apiKey,
	}
}

func (s *NewsAPISource) Fetch(ctx context.Context, query string, from, to time.Time, pageSize int) ([]models.NewsArticle, error) {
	params := map[string][]string{
		"q":        {query},
		"from":     {from.UTC().Format(util.DateLayout)},
		"to":       {to.UTC().Format(util.DateLayout)},
		"language": {"en"},
		"sortBy":   {"publishedAt"},
		"pageSize": {strconv.Itoa(min(max(pageSize, 1), newsAPIMaxPageSize))},
	}

	var resp newsAPIResponse
	err := s.retry(ctx, query, func() error {
		resp = newsAPIResponse{}
		return s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         s.endpoint,
			Headers:     map[string]string{"X-Api-Key": s.apiKey},
			QueryParams: params,
		}, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("newsapi %q: %w", query, err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("newsapi %q: %s", query, resp.Message)
	}

	out := make([]models.NewsArticle, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		published, _ := util.ParseTime(a.PublishedAt)
		out = append(out, models.NewsArticle{
			Title:       a.Title,
			Snippet:     a.Description,
			PublishedAt: published,
			URL:         a.URL,
			Source:      a.Source.Name,
		})
	}
	return out, nil
}
