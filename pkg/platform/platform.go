// Package platform is the management API client used by the traffical CLI
// to read and write a project's parameter and event definitions.
package platform

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/httpapi"
)

// Project is a platform project.
type Project struct {
	ID           string   `json:"id"`
	OrgID        string   `json:"orgId"`
	Name         string   `json:"name"`
	Environments []string `json:"environments,omitempty"`
}

// Parameter is a parameter definition as stored on the platform.
type Parameter struct {
	Key         string               `json:"key"`
	Type        config.ParameterType `json:"type"`
	Default     any                  `json:"default"`
	Description string               `json:"description,omitempty"`
	Namespace   string               `json:"namespace,omitempty"`
	UpdatedAt   time.Time            `json:"updatedAt,omitempty"`
}

// Event is an event definition as stored on the platform.
type Event struct {
	Name        string           `json:"name"`
	ValueType   config.ValueType `json:"valueType"`
	Unit        string           `json:"unit,omitempty"`
	Description string           `json:"description,omitempty"`
}

// Client talks to the management endpoints.
type Client struct {
	api *httpapi.Client
}

// New wraps an httpapi.Client authenticated with a management key.
func New(api *httpapi.Client) *Client {
	return &Client{api: api}
}

func projectPath(projectID string, elem ...string) string {
	p := "/v1/projects/" + url.PathEscape(projectID)
	for _, e := range elem {
		p += "/" + url.PathEscape(e)
	}
	return p
}

// GetProject returns project metadata.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var project Project
	if _, err := c.api.Do(ctx, httpapi.Request{Method: http.MethodGet, Path: projectPath(projectID)}, &project); err != nil {
		return nil, errors.Wrapf(err, "failed to get project %s", projectID)
	}
	return &project, nil
}

// ListParameters returns every parameter defined for the project.
func (c *Client) ListParameters(ctx context.Context, projectID string) ([]Parameter, error) {
	var out struct {
		Parameters []Parameter `json:"parameters"`
	}
	if _, err := c.api.Do(ctx, httpapi.Request{Method: http.MethodGet, Path: projectPath(projectID, "parameters")}, &out); err != nil {
		return nil, errors.Wrapf(err, "failed to list parameters for %s", projectID)
	}
	return out.Parameters, nil
}

// UpsertParameter creates or replaces a parameter definition.
func (c *Client) UpsertParameter(ctx context.Context, projectID string, p Parameter) (*Parameter, error) {
	var out Parameter
	_, err := c.api.Do(ctx, httpapi.Request{
		Method: http.MethodPut,
		Path:   projectPath(projectID, "parameters", p.Key),
		Body:   p,
	}, &out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to upsert parameter %s", p.Key)
	}
	return &out, nil
}

// ListEvents returns every event defined for the project.
func (c *Client) ListEvents(ctx context.Context, projectID string) ([]Event, error) {
	var out struct {
		Events []Event `json:"events"`
	}
	if _, err := c.api.Do(ctx, httpapi.Request{Method: http.MethodGet, Path: projectPath(projectID, "events")}, &out); err != nil {
		return nil, errors.Wrapf(err, "failed to list events for %s", projectID)
	}
	return out.Events, nil
}

// UpsertEvent creates or replaces an event definition.
func (c *Client) UpsertEvent(ctx context.Context, projectID string, e Event) (*Event, error) {
	var out Event
	_, err := c.api.Do(ctx, httpapi.Request{
		Method: http.MethodPut,
		Path:   projectPath(projectID, "events", e.Name),
		Body:   e,
	}, &out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to upsert event %s", e.Name)
	}
	return &out, nil
}
