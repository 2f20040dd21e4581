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
	mediaStackName     = "mediastack"
	mediaStackMaxLimit = 25
)

type mediaStackResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Data []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Source      string `json:"source"`
		PublishedAt string `json:"published_at"`
	} `json:"data"`
}

// MediaStackSource queries the mediastack news endpoint. The key travels as
// the access_key query parameter.
type MediaStackSource struct {
	httpSource
	accessKey string
}

func NewMediaStackSource(endpoint, accessKey string, client *xhttp.Client, log *logger.Logger, opts ...SourceOption) *MediaStackSource {
	return &MediaStackSource{
		httpSource: newHTTPSource(mediaStackName, endpoint, client, 1500*time.Millisecond, log, opts),
		accessKey:  accessKey,
	}
}

func (s *MediaStackSource) Fetch(ctx context.Context, query string, from, to time.Time, pageSize int) ([]models.NewsArticle, error) {
	keywords := unquote(query)
	params := map[string][]string{
		"access_key": {s.accessKey},
		"keywords":   {keywords},
		"languages":  {"en"},
		"date":       {from.UTC().Format(util.DateLayout) + "," + to.UTC().Format(util.DateLayout)},
		"limit":      {strconv.Itoa(min(max(pageSize, 1), mediaStackMaxLimit))},
		"sort":       {"published_desc"},
	}

	var resp mediaStackResponse
	err := s.retry(ctx, keywords, func() error {
		resp = mediaStackResponse{}
		return s.client.GetJSON(ctx, s.endpoint, params, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("mediastack %q: %w", keywords, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mediastack %q: %s: %s", keywords, resp.Error.Code, resp.Error.Message)
	}

	out := make([]models.NewsArticle, 0, len(resp.Data))
	for _, a := range resp.Data {
		published, _ := util.ParseTime(a.PublishedAt)
		out = append(out, models.NewsArticle{
			Title:       a.Title,
			Snippet:     a.Description,
			PublishedAt: published,
			URL:         a.URL,
			Source:      a.Source,
		})
	}
	return out, nil
}
