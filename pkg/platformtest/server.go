// Package platformtest provides an in-process fake of the Traffical platform
// API for tests: management endpoints, bundle delivery and event ingest.
package platformtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/traffical/traffical-go/pkg/bundle"
	"github.com/traffical/traffical-go/pkg/httpapi"
	"github.com/traffical/traffical-go/pkg/platform"
)

// DefaultAPIKey is accepted by servers created without WithAPIKey.
const DefaultAPIKey = "tk_test_key"

// Server is a fake platform backed by in-memory state.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	apiKey     string
	projects   map[string]platform.Project
	parameters map[string]map[string]platform.Parameter
	events     map[string]map[string]platform.Event
	bundles    map[string][]byte
	etags      map[string]string
	received   []map[string]any
	requests   map[string]int
	failures   []int
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey sets the bearer key the server accepts.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithProject registers a project.
func WithProject(p platform.Project) Option {
	return func(s *Server) { s.projects[p.ID] = p }
}

// New starts a fake platform and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Server {
	s := &Server{
		apiKey:     DefaultAPIKey,
		projects:   map[string]platform.Project{},
		parameters: map[string]map[string]platform.Parameter{},
		events:     map[string]map[string]platform.Event{},
		bundles:    map[string][]byte{},
		etags:      map[string]string{},
		requests:   map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// APIKey returns the key the server accepts.
func (s *Server) APIKey() string {
	return s.apiKey
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.countRequests, s.injectFailures, s.authenticate)

	r.HandleFunc("/v1/projects/{project}", s.getProject).Methods(http.MethodGet)
	r.HandleFunc("/v1/projects/{project}/parameters", s.listParameters).Methods(http.MethodGet)
	r.HandleFunc("/v1/projects/{project}/parameters/{key}", s.putParameter).Methods(http.MethodPut)
	r.HandleFunc("/v1/projects/{project}/events", s.listEvents).Methods(http.MethodGet)
	r.HandleFunc("/v1/projects/{project}/events/{name}", s.putEvent).Methods(http.MethodPut)
	r.HandleFunc("/v1/bundles/{project}", s.getBundle).Methods(http.MethodGet)
	r.HandleFunc("/v1/events/batch", s.ingestEvents).Methods(http.MethodPost)
	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var status int
		if len(s.failures) > 0 {
			status, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			httpapi.WriteError(w, status, "injected", http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			httpapi.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next len(statuses) requests fail with the given statuses.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Requests returns how many times "METHOD /path" was requested.
func (s *Server) Requests(methodAndPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[methodAndPath]
}

// SetParameter stores a remote parameter definition.
func (s *Server) SetParameter(projectID string, p platform.Parameter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parameters[projectID] == nil {
		s.parameters[projectID] = map[string]platform.Parameter{}
	}
	s.parameters[projectID][p.Key] = p
}

// Parameters returns the stored parameters for a project keyed by key.
func (s *Server) Parameters(projectID string) map[string]platform.Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]platform.Parameter, len(s.parameters[projectID]))
	for k, v := range s.parameters[projectID] {
		out[k] = v
	}
	return out
}

// SetEvent stores a remote event definition.
func (s *Server) SetEvent(projectID string, e platform.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events[projectID] == nil {
		s.events[projectID] = map[string]platform.Event{}
	}
	s.events[projectID][e.Name] = e
}

// Events returns the stored events for a project keyed by name.
func (s *Server) Events(projectID string) map[string]platform.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]platform.Event, len(s.events[projectID]))
	for k, v := range s.events[projectID] {
		out[k] = v
	}
	return out
}

// SetBundle publishes b for project/environment. Its ETag is derived from
// b.Version so republishing the same version yields 304s.
func (s *Server) SetBundle(b *bundle.Bundle) {
	data, err := json.Marshal(b)
	if err != nil {
		panic(fmt.Sprintf("platformtest: marshal bundle: %v", err))
	}
	key := b.ProjectID + "/" + b.Environment

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[key] = data
	s.etags[key] = fmt.Sprintf(`"%d"`, b.Version)
}

// ReceivedEvents returns every event posted to the ingest endpoint.
func (s *Server) ReceivedEvents() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.received))
	copy(out, s.received)
	return out
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["project"]
	s.mu.Lock()
	p, ok := s.projects[id]
	s.mu.Unlock()
	if !ok {
		httpapi.WriteError(w, http.StatusNotFound, "project_not_found", "project "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listParameters(w http.ResponseWriter, r *http.Request) {
	params := s.Parameters(mux.Vars(r)["project"])
	out := make([]platform.Parameter, 0, len(params))
	for _, p := range params {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	writeJSON(w, http.StatusOK, map[string]any{"parameters": out})
}

func (s *Server) putParameter(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var p platform.Parameter
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if p.Key != vars["key"] {
		httpapi.WriteError(w, http.StatusBadRequest, "key_mismatch", "body key does not match path")
		return
	}
	p.UpdatedAt = time.Now().UTC()
	s.SetParameter(vars["project"], p)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events := s.Events(mux.Vars(r)["project"])
	out := make([]platform.Event, 0, len(events))
	for _, e := range events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) putEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var e platform.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if e.Name != vars["name"] {
		httpapi.WriteError(w, http.StatusBadRequest, "name_mismatch", "body name does not match path")
		return
	}
	s.SetEvent(vars["project"], e)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) getBundle(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["project"] + "/" + r.URL.Query().Get("env")

	s.mu.Lock()
	data, ok := s.bundles[key]
	etag := s.etags[key]
	s.mu.Unlock()

	if !ok {
		httpapi.WriteError(w, http.StatusNotFound, "bundle_not_found", "no bundle for "+key)
		return
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) ingestEvents(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	for _, e := range body.Events {
		if t, _ := e["type"].(string); strings.TrimSpace(t) == "" {
			httpapi.WriteError(w, http.StatusUnprocessableEntity, "invalid_event", "event type is required")
			return
		}
	}

	s.mu.Lock()
	s.received = append(s.received, body.Events...)
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(body.Events)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
