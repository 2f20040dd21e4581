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
	twitterName       = "twitter"
	twitterMinResults = 10
	twitterMaxResults = 100
	tweetTitleLen     = 200
)

type twitterResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		AuthorID  string `json:"author_id"`
		CreatedAt string `json:"created_at"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// TwitterSource turns recent-search tweets into articles. Retweets are
// excluded and the tweet text serves as both title and snippet.
type TwitterSource struct {
	httpSource
	token string
}

func NewTwitterSource(endpoint, bearerToken string, client *xhttp.Client, log *logger.Logger, opts ...SourceOption) *TwitterSource {
	return &TwitterSource{
		httpSource: newHTTPSource(twitterName, endpoint, client, 2*time.Second, log, opts),
		token:      bearerToken,
	}
}

func (s *TwitterSource) Fetch(ctx context.Context, query string, from, _ time.Time, pageSize int) ([]models.NewsArticle, error) {
	keywords := unquote(query)
	params := map[string][]string{
		"query":        {keywords + " -is:retweet lang:en"},
		"max_results":  {strconv.Itoa(min(max(pageSize, twitterMinResults), twitterMaxResults))},
		"start_time":   {from.UTC().Format(time.RFC3339)},
		"tweet.fields": {"created_at,author_id,text"},
		"expansions":   {"author_id"},
		"user.fields":  {"username"},
	}

	var resp twitterResponse
	err := s.retry(ctx, keywords, func() error {
		resp = twitterResponse{}
		return s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         s.endpoint,
			Headers:     map[string]string{"Authorization": "Bearer " + s.token},
			QueryParams: params,
		}, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("twitter %q: %w", keywords, err)
	}

	users := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u.Username
	}
	out := make([]models.NewsArticle, 0, len(resp.Data))
	for _, tw := range resp.Data {
		author, ok := users[tw.AuthorID]
		if !ok {
			author = "unknown"
		}
		published, _ := util.ParseTime(tw.CreatedAt)
		out = append(out, models.NewsArticle{
			Title:       util.Truncate(tw.Text, tweetTitleLen),
			Snippet:     tw.Text,
			PublishedAt: published,
			URL:         fmt.Sprintf("https://twitter.com/%s/status/%s", author, tw.ID),
			Source:      "Twitter (@" + author + ")",
		})
	}
	return out, nil
}
