// Package projectsync compares a local config.yaml with the platform's
// definitions and applies the differences in either direction. Nothing is
// ever deleted remotely: items that exist only on the platform are reported
// and can be pulled, but push leaves them alone.
package projectsync

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"sort"

	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/platform"
)

// Kind is the type of item a Change refers to.
type Kind string

const (
	KindParameter Kind = "parameter"
	KindEvent     Kind = "event"
)

// Action is what applying a plan does to an item.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionUnchanged  Action = "unchanged"
	ActionRemoteOnly Action = "remote-only"
)

// Change describes one parameter or event.
type Change struct {
	Kind   Kind
	Key    string
	Action Action
	// Fields lists the differing fields for updates.
	Fields []string
}

// API is the subset of the platform client projectsync needs.
type API interface {
	ListParameters(ctx context.Context, projectID string) ([]platform.Parameter, error)
	UpsertParameter(ctx context.Context, projectID string, p platform.Parameter) (*platform.Parameter, error)
	ListEvents(ctx context.Context, projectID string) ([]platform.Event, error)
	UpsertEvent(ctx context.Context, projectID string, e platform.Event) (*platform.Event, error)
}

// Remote is the platform's view of a project.
type Remote struct {
	Parameters map[string]platform.Parameter
	Events     map[string]platform.Event
}

// FetchRemote lists the project's parameters and events.
func FetchRemote(ctx context.Context, api API, projectID string) (*Remote, error) {
	params, err := api.ListParameters(ctx, projectID)
	if err != nil {
		return nil, err
	}
	evs, err := api.ListEvents(ctx, projectID)
	if err != nil {
		return nil, err
	}

	r := &Remote{
		Parameters: make(map[string]platform.Parameter, len(params)),
		Events:     make(map[string]platform.Event, len(evs)),
	}
	for _, p := range params {
		r.Parameters[p.Key] = p
	}
	for _, e := range evs {
		r.Events[e.Name] = e
	}
	return r, nil
}

// Plan is the full comparison between local and remote.
type Plan struct {
	ProjectID string
	Changes   []Change

	local  *config.Config
	remote *Remote
}

// BuildPlan compares local with remote. Changes are ordered parameters
// first, then events, each sorted by key.
func BuildPlan(local *config.Config, remote *Remote) *Plan {
	if remote == nil {
		remote = &Remote{}
	}
	p := &Plan{ProjectID: local.Project.ID, local: local, remote: remote}

	for _, key := range unionKeys(local.Parameters, remote.Parameters) {
		l, hasLocal := local.Parameters[key]
		r, hasRemote := remote.Parameters[key]
		p.Changes = append(p.Changes, classify(KindParameter, key, hasLocal, hasRemote, func() []string {
			return parameterDiff(l, r)
		}))
	}
	for _, name := range unionKeys(local.Events, remote.Events) {
		l, hasLocal := local.Events[name]
		r, hasRemote := remote.Events[name]
		p.Changes = append(p.Changes, classify(KindEvent, name, hasLocal, hasRemote, func() []string {
			return eventDiff(l, r)
		}))
	}
	return p
}

func classify(kind Kind, key string, hasLocal, hasRemote bool, diff func() []string) Change {
	c := Change{Kind: kind, Key: key}
	switch {
	case hasLocal && !hasRemote:
		c.Action = ActionCreate
	case !hasLocal && hasRemote:
		c.Action = ActionRemoteOnly
	default:
		c.Fields = diff()
		if len(c.Fields) > 0 {
			c.Action = ActionUpdate
		} else {
			c.Action = ActionUnchanged
		}
	}
	return c
}

func unionKeys[L, R any](local map[string]L, remote map[string]R) []string {
	seen := make(map[string]struct{}, len(local)+len(remote))
	for k := range local {
		seen[k] = struct{}{}
	}
	for k := range remote {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parameterDiff(l config.Parameter, r platform.Parameter) []string {
	var fields []string
	if l.Type != r.Type {
		fields = append(fields, "type")
	}
	if !sameValue(l.Default, r.Default) {
		fields = append(fields, "default")
	}
	if l.Description != r.Description {
		fields = append(fields, "description")
	}
	if l.Namespace != r.Namespace {
		fields = append(fields, "namespace")
	}
	return fields
}

func eventDiff(l config.Event, r platform.Event) []string {
	var fields []string
	if l.ValueType != r.ValueType {
		fields = append(fields, "valueType")
	}
	if l.Unit != r.Unit {
		fields = append(fields, "unit")
	}
	if l.Description != r.Description {
		fields = append(fields, "description")
	}
	return fields
}

// sameValue compares defaults by their JSON encoding so 3 and 3.0, or YAML
// and JSON decoded maps, compare equal.
func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	var va, vb any
	if json.Unmarshal(ja, &va) != nil || json.Unmarshal(jb, &vb) != nil {
		return string(ja) == string(jb)
	}
	return reflect.DeepEqual(va, vb)
}

// Filter returns the changes with any of the given actions.
func (p *Plan) Filter(actions ...Action) []Change {
	var out []Change
	for _, c := range p.Changes {
		for _, a := range actions {
			if c.Action == a {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Counts tallies changes per action.
func (p *Plan) Counts() map[Action]int {
	counts := map[Action]int{}
	for _, c := range p.Changes {
		counts[c.Action]++
	}
	return counts
}

// HasLocalChanges reports whether push would do anything.
func (p *Plan) HasLocalChanges() bool {
	return len(p.Filter(ActionCreate, ActionUpdate)) > 0
}

// ToPlatformParameter converts a local parameter definition.
func ToPlatformParameter(key string, p config.Parameter) platform.Parameter {
	return platform.Parameter{
		Key:         key,
		Type:        p.Type,
		Default:     p.Default,
		Description: p.Description,
		Namespace:   p.Namespace,
	}
}

// FromPlatformParameter converts a remote parameter definition.
func FromPlatformParameter(p platform.Parameter) config.Parameter {
	return config.Parameter{
		Type:        p.Type,
		Default:     integralNumbers(p.Default),
		Description: p.Description,
		Namespace:   p.Namespace,
	}
}

// ToPlatformEvent converts a local event definition.
func ToPlatformEvent(name string, e config.Event) platform.Event {
	return platform.Event{Name: name, ValueType: e.ValueType, Unit: e.Unit, Description: e.Description}
}

// FromPlatformEvent converts a remote event definition.
func FromPlatformEvent(e platform.Event) config.Event {
	return config.Event{ValueType: e.ValueType, Unit: e.Unit, Description: e.Description}
}

// integralNumbers converts whole float64 values to int so pulled defaults
// keep the shape they were pushed with.
func integralNumbers(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int(val)
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = integralNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = integralNumbers(item)
		}
		return out
	}
	return v
}
