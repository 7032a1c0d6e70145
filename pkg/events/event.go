// Package events delivers decision and track events to the platform in
// the background. Enqueueing never blocks the caller: when the queue is
// full events are dropped and counted.
package events

import (
	"encoding/json"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/traffical/traffical-go/pkg/resolver"
	"github.com/traffical/traffical-go/pkg/version"
)

// Type distinguishes decision events from track events.
type Type string

const (
	TypeDecision Type = "decision"
	TypeTrack    Type = "track"
)

// SDKInfo identifies the emitting SDK.
type SDKInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// CurrentSDK describes this SDK build.
func CurrentSDK() SDKInfo {
	return SDKInfo{Name: version.SDKName, Version: version.Version}
}

// Event is a single record sent to the ingest endpoint.
type Event struct {
	ID          string                     `json:"id"`
	Type        Type                       `json:"type"`
	Timestamp   time.Time                  `json:"timestamp"`
	ProjectID   string                     `json:"projectId"`
	Environment string                     `json:"environment"`
	UnitKey     string                     `json:"unitKey,omitempty"`
	DecisionID  string                     `json:"decisionId,omitempty"`
	Name        string                     `json:"name,omitempty"`
	Value       *float64                   `json:"value,omitempty"`
	Properties  map[string]any             `json:"properties,omitempty"`
	Values      map[string]any             `json:"values,omitempty"`
	Context     map[string]any             `json:"context,omitempty"`
	Assignments []resolver.LayerAssignment `json:"assignments,omitempty"`
	SDK         SDKInfo                    `json:"sdk"`
}

// NewID returns a random event identifier.
func NewID() string {
	return uuid.NewString()
}

// DedupKey identifies decision events that carry the same information for
// the same unit. It is empty for track events, which are never deduplicated.
func DedupKey(e Event) string {
	if e.Type != TypeDecision {
		return ""
	}
	h := fnv.New64a()
	// map keys are marshalled in sorted order, so the hash is stable
	_ = json.NewEncoder(h).Encode(struct {
		Values      map[string]any             `json:"v"`
		Assignments []resolver.LayerAssignment `json:"a"`
	}{e.Values, e.Assignments})
	return e.UnitKey + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// CloneFields copies m along with any nested maps and slices so an event
// keeps no reference to caller-owned containers. Nil stays nil.
func CloneFields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneField(v)
	}
	return out
}

func cloneField(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneFields(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneField(item)
		}
		return out
	default:
		return v
	}
}

// Batch is a group of events persisted together in an Outbox.
type Batch struct {
	ID        string
	Events    []Event
	Attempts  int
	CreatedAt time.Time
}
