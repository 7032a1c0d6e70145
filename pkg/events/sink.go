package events

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/httpapi"
)

// Sink delivers a batch of events.
type Sink interface {
	Send(ctx context.Context, batch []Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, batch []Event) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// HTTPSink posts batches to the platform ingest endpoint. Transient
// failures are retried by the underlying httpapi client.
type HTTPSink struct {
	api *httpapi.Client
}

// NewHTTPSink creates a sink that posts through api.
func NewHTTPSink(api *httpapi.Client) *HTTPSink {
	return &HTTPSink{api: api}
}

// Send posts {"events": batch} to /v1/events/batch.
func (s *HTTPSink) Send(ctx context.Context, batch []Event) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := s.api.Do(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   "/v1/events/batch",
		Body:   map[string][]Event{"events": batch},
	}, nil)
	return errors.Wrapf(err, "failed to send %d events", len(batch))
}

// IsPermanent reports whether a delivery error will never succeed on retry,
// i.e. the platform rejected the batch with a non-retryable 4xx.
func IsPermanent(err error) bool {
	var apiErr *httpapi.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && !apiErr.Transient()
}
