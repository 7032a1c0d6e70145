package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/httpapi"
)

// Fetcher retrieves bundles from the platform.
type Fetcher struct {
	api         *httpapi.Client
	projectID   string
	environment string
}

// NewFetcher creates a Fetcher for one project environment.
func NewFetcher(api *httpapi.Client, projectID, environment string) *Fetcher {
	return &Fetcher{api: api, projectID: projectID, environment: environment}
}

// FetchResult is the outcome of a conditional fetch.
type FetchResult struct {
	Bundle      *Bundle
	ETag        string
	NotModified bool
}

// Fetch downloads the bundle. When etag is non-empty the request is
// conditional and an unchanged bundle yields NotModified with a nil Bundle.
func (f *Fetcher) Fetch(ctx context.Context, etag string) (*FetchResult, error) {
	header := http.Header{}
	if etag != "" {
		header.Set("If-None-Match", etag)
	}

	var raw json.RawMessage
	resp, err := f.api.Do(ctx, httpapi.Request{
		Method: http.MethodGet,
		Path:   "/v1/bundles/" + url.PathEscape(f.projectID),
		Query:  url.Values{"env": {f.environment}},
		Header: header,
	}, &raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch bundle for %s/%s", f.projectID, f.environment)
	}

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{ETag: etag, NotModified: true}, nil
	}

	b, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &FetchResult{Bundle: b, ETag: resp.Header.Get("ETag")}, nil
}
