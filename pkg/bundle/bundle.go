// Package bundle defines the configuration bundle a client resolves against
// and the machinery to fetch, hold and cache it. A bundle is an immutable
// snapshot: it is replaced wholesale on refetch and never mutated in place.
package bundle

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/bucketing"
	"github.com/traffical/traffical-go/pkg/config"
)

// DefaultUnitKey is the context attribute used as the unit key when the
// bundle does not name one.
const DefaultUnitKey = "userId"

// Policy states.
const (
	StateRunning   = "running"
	StatePaused    = "paused"
	StateCompleted = "completed"
)

// Bundle is the snapshot of parameters and assignment rules for one environment.
type Bundle struct {
	Version     int64         `json:"version"`
	ProjectID   string        `json:"projectId"`
	OrgID       string        `json:"orgId,omitempty"`
	Environment string        `json:"environment"`
	GeneratedAt time.Time     `json:"generatedAt"`
	TTLSeconds  int           `json:"ttlSeconds,omitempty"`
	Hashing     Hashing       `json:"hashing"`
	Parameters  []Parameter   `json:"parameters"`
	Layers      []Layer       `json:"layers,omitempty"`
	Events      []EventSchema `json:"events,omitempty"`

	params map[string]Parameter
	events map[string]EventSchema
}

// Hashing configures bucketing for the bundle.
type Hashing struct {
	UnitKey     string `json:"unitKey,omitempty"`
	BucketCount int    `json:"bucketCount,omitempty"`
}

// Parameter is a parameter as published in the bundle.
type Parameter struct {
	Key       string               `json:"key"`
	Type      config.ParameterType `json:"type"`
	Default   any                  `json:"default"`
	Namespace string               `json:"namespace,omitempty"`
}

// Layer groups mutually exclusive policies that share one bucketing salt.
type Layer struct {
	ID       string   `json:"id"`
	Policies []Policy `json:"policies"`
}

// Policy assigns parameter overrides to bucket ranges for matching units.
type Policy struct {
	ID          string                `json:"id"`
	State       string                `json:"state"`
	Kind        string                `json:"kind,omitempty"`
	Conditions  []bucketing.Condition `json:"conditions,omitempty"`
	Allocations []Allocation          `json:"allocations"`
}

// Allocation is one variant: a bucket range and the overrides it applies.
type Allocation struct {
	Name      string          `json:"name"`
	Buckets   bucketing.Range `json:"buckets"`
	Overrides map[string]any  `json:"overrides"`
}

// EventSchema is an event definition published in the bundle.
type EventSchema struct {
	Name      string           `json:"name"`
	ValueType config.ValueType `json:"valueType"`
	Unit      string           `json:"unit,omitempty"`
}

// Decode reads a bundle from JSON, validates it and builds its indexes.
func Decode(r io.Reader) (*Bundle, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	b := &Bundle{}
	if err := dec.Decode(b); err != nil {
		return nil, errors.Wrap(err, "failed to decode bundle")
	}
	if err := b.Prepare(); err != nil {
		return nil, err
	}
	return b, nil
}

// Prepare validates b and builds the lookup indexes. It must be called once
// before a hand-built bundle is handed to a Store.
func (b *Bundle) Prepare() error {
	if err := b.Validate(); err != nil {
		return err
	}

	b.params = make(map[string]Parameter, len(b.Parameters))
	for _, p := range b.Parameters {
		b.params[p.Key] = p
	}
	b.events = make(map[string]EventSchema, len(b.Events))
	for _, e := range b.Events {
		b.events[e.Name] = e
	}
	return nil
}

// Validate checks structural invariants of the bundle.
func (b *Bundle) Validate() error {
	count := b.BucketCount()
	seen := make(map[string]struct{}, len(b.Parameters))
	for _, p := range b.Parameters {
		if p.Key == "" {
			return errors.New("bundle parameter with empty key")
		}
		if _, dup := seen[p.Key]; dup {
			return errors.Errorf("duplicate bundle parameter %q", p.Key)
		}
		seen[p.Key] = struct{}{}
	}

	for _, layer := range b.Layers {
		if layer.ID == "" {
			return errors.New("bundle layer with empty id")
		}
		for _, policy := range layer.Policies {
			ranges := make([]bucketing.Range, 0, len(policy.Allocations))
			for _, alloc := range policy.Allocations {
				r := alloc.Buckets
				if r.Start < 0 || r.End > count || r.Start >= r.End {
					return errors.Errorf("layer %s policy %s: allocation %q range [%d,%d) outside [0,%d)",
						layer.ID, policy.ID, alloc.Name, r.Start, r.End, count)
				}
				ranges = append(ranges, r)
			}
			sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
			for i := 1; i < len(ranges); i++ {
				if ranges[i-1].Overlaps(ranges[i]) {
					return errors.Errorf("layer %s policy %s: overlapping allocations", layer.ID, policy.ID)
				}
			}
		}
	}
	return nil
}

// Parameter returns the bundle definition of key.
func (b *Bundle) Parameter(key string) (Parameter, bool) {
	if b.params == nil {
		for _, p := range b.Parameters {
			if p.Key == key {
				return p, true
			}
		}
		return Parameter{}, false
	}
	p, ok := b.params[key]
	return p, ok
}

// Event returns the bundle schema for the named event.
func (b *Bundle) Event(name string) (EventSchema, bool) {
	if b.events == nil {
		for _, e := range b.Events {
			if e.Name == name {
				return e, true
			}
		}
		return EventSchema{}, false
	}
	e, ok := b.events[name]
	return e, ok
}

// UnitKeyAttribute returns the context attribute holding the unit key.
func (b *Bundle) UnitKeyAttribute() string {
	if b.Hashing.UnitKey == "" {
		return DefaultUnitKey
	}
	return b.Hashing.UnitKey
}

// BucketCount returns the configured bucket count or the default.
func (b *Bundle) BucketCount() int {
	if b.Hashing.BucketCount <= 0 {
		return bucketing.DefaultBucketCount
	}
	return b.Hashing.BucketCount
}

// TTL returns the bundle's declared validity window, zero when unset.
func (b *Bundle) TTL() time.Duration {
	return time.Duration(b.TTLSeconds) * time.Second
}
