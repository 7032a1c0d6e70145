package client

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/bundle"
	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/events"
	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/resolver"
)

// Context holds the attributes of the unit being resolved. The unit key
// attribute (userId unless the bundle names another) drives bucketing.
type Context map[string]any

// Decision is a resolution that was reported to the platform.
type Decision struct {
	ID          string
	UnitKey     string
	Timestamp   time.Time
	Values      map[string]any
	Context     Context
	Assignments []resolver.LayerAssignment
	Source      resolver.Source
}

func (c *Client) resolve(ctx context.Context, attrs Context, defaults map[string]any) (resolver.Resolution, *bundle.Snapshot) {
	snap := c.store.Load()
	res := resolver.Resolve(snap, attrs, defaults, resolver.Options{
		Now:          c.now(),
		MaxStaleness: c.opts.MaxStaleness,
	})
	if len(res.Mismatched) > 0 {
		logger.G(ctx).WithField("keys", res.Mismatched).Debug("bundle values did not match default types")
	}
	return res, snap
}

// GetParams resolves defaults for attrs without reporting anything.
func (c *Client) GetParams(ctx context.Context, attrs Context, defaults map[string]any) map[string]any {
	res, _ := c.resolve(ctx, attrs, defaults)
	return res.Values
}

// DecideParams resolves defaults for attrs and reports the decision so
// later Track calls can be attributed to it.
func (c *Client) DecideParams(ctx context.Context, attrs Context, defaults map[string]any) Decision {
	res, snap := c.resolve(ctx, attrs, defaults)

	unitKey, _ := resolver.UnitKey(attrs, unitKeyAttribute(snap))
	d := Decision{
		ID:          events.NewID(),
		UnitKey:     unitKey,
		Timestamp:   c.now().UTC(),
		Values:      res.Values,
		Context:     Context(events.CloneFields(attrs)),
		Assignments: res.Assignments,
		Source:      res.Source,
	}

	if c.emitter != nil && unitKey != "" {
		c.emitter.Enqueue(ctx, events.Event{
			ID:          d.ID,
			Type:        events.TypeDecision,
			Timestamp:   d.Timestamp,
			ProjectID:   c.opts.ProjectID,
			Environment: c.opts.Environment,
			UnitKey:     unitKey,
			Values:      events.CloneFields(d.Values),
			Context:     events.CloneFields(attrs),
			Assignments: slices.Clone(d.Assignments),
			SDK:         events.CurrentSDK(),
		})
	}
	return d
}

func unitKeyAttribute(snap *bundle.Snapshot) string {
	if snap == nil || snap.Bundle == nil {
		return bundle.DefaultUnitKey
	}
	return snap.Bundle.UnitKeyAttribute()
}

// TrackOptions carries the optional parts of a track event.
type TrackOptions struct {
	Value      *float64
	Properties map[string]any
	// UnitKey identifies the unit; required unless DecisionID is set.
	UnitKey    string
	DecisionID string
}

// Value is a convenience for TrackOptions.Value.
func Value(v float64) *float64 {
	return &v
}

// Track queues a conversion event. It returns an error only for invalid
// input; delivery happens in the background.
func (c *Client) Track(ctx context.Context, name string, opts TrackOptions) error {
	if err := config.ValidateEventName(name); err != nil {
		return err
	}
	if opts.UnitKey == "" && opts.DecisionID == "" {
		return errors.New("track requires a unit key or a decision id")
	}
	if opts.Value != nil && (math.IsNaN(*opts.Value) || math.IsInf(*opts.Value, 0)) {
		return errors.Errorf("event %s: value must be finite", name)
	}
	if c.emitter == nil {
		return nil
	}

	if snap := c.store.Load(); snap != nil {
		schema, ok := snap.Bundle.Event(name)
		switch {
		case !ok:
			logger.G(ctx).WithField("event", name).Debug("tracking event not declared in bundle")
		case !valueFits(schema.ValueType, opts.Value):
			logger.G(ctx).WithField("event", name).
				WithField("valueType", schema.ValueType).
				Warn("event value does not match declared value type")
		}
	}

	c.emitter.Enqueue(ctx, events.Event{
		ID:          events.NewID(),
		Type:        events.TypeTrack,
		Timestamp:   c.now().UTC(),
		ProjectID:   c.opts.ProjectID,
		Environment: c.opts.Environment,
		UnitKey:     opts.UnitKey,
		DecisionID:  opts.DecisionID,
		Name:        name,
		Value:       opts.Value,
		Properties:  events.CloneFields(opts.Properties),
		SDK:         events.CurrentSDK(),
	})
	return nil
}

func valueFits(vt config.ValueType, v *float64) bool {
	if v == nil {
		return true
	}
	switch vt {
	case config.ValueCount:
		return *v >= 0 && *v == math.Trunc(*v)
	case config.ValueRate:
		return *v >= 0 && *v <= 1
	case config.ValueBoolean:
		return *v == 0 || *v == 1
	}
	return true
}
