package modelsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	svcmetrics "QuantLens/internal/service/metrics"
	"QuantLens/pkg/config"
	xhttp "QuantLens/pkg/http"
	"QuantLens/pkg/logger"

	"github.com/sony/gobreaker"
)

// HTTPServiceBase is the shared transport for model-service clients. Calls go
// through a circuit breaker that opens after consecutive upstream failures.
type HTTPServiceBase struct {
	name     string
	baseURL  string
	client   *xhttp.Client
	breaker  *gobreaker.CircuitBreaker
	attempts int
	log      *logger.Logger
}

// NewHTTPServiceBase builds the client from the model_service config section.
func NewHTTPServiceBase(name string, cfg *config.Config, log *logger.Logger) *HTTPServiceBase {
	ms := cfg.ModelService
	failures := ms.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.String("upstream", name))

	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  ms.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// client errors are the caller's fault, not an unhealthy upstream
			var se *xhttp.StatusError
			return err == nil || (errors.As(err, &se) && !se.Temporary())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	}

	return &HTTPServiceBase{
		name:     name,
		baseURL:  ms.URL,
		client:   xhttp.NewClient(xhttp.WithTimeout(ms.Timeout)),
		breaker:  gobreaker.NewCircuitBreaker(st),
		attempts: ms.RetryAttempts,
		log:      log,
	}
}

// PostJSON posts payload to path under the base URL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) (err error) {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("%s: model service url not configured", b.name)
	}
	defer svcmetrics.Observe(b.name, time.Now(), &err)

	_, err = b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     b.baseURL + path,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    payload,
		}, dest)
	})
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transient failures with linear backoff. Open
// breakers and client errors are returned immediately.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	attempts := max(b.attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil || !retryable(err) || i == attempts {
			return err
		}
		b.log.Debug("retrying model service call", logger.String("path", path), logger.Int("attempt", i), logger.Error(err))
		select {
		case <-time.After(time.Duration(i) * 200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
