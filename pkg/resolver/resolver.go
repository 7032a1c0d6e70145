// Package resolver computes parameter values for a unit from a bundle
// snapshot. Resolution is synchronous, lock-free and never fails: every
// problem degrades to the caller's defaults.
package resolver

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/traffical/traffical-go/pkg/bucketing"
	"github.com/traffical/traffical-go/pkg/bundle"
)

// Source tells where resolved values came from.
type Source string

const (
	// SourceBundle means the values were resolved against a valid bundle.
	SourceBundle Source = "bundle"
	// SourceDefaults means no usable bundle was available.
	SourceDefaults Source = "defaults"
)

// LayerAssignment records the policy and allocation a unit landed in.
type LayerAssignment struct {
	LayerID    string `json:"layerId"`
	PolicyID   string `json:"policyId"`
	Allocation string `json:"allocation"`
	Bucket     int    `json:"bucket"`
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Values      map[string]any
	Assignments []LayerAssignment
	Source      Source
	// BundleVersion is zero when Source is SourceDefaults.
	BundleVersion int64
	// Mismatched lists requested keys whose bundle value could not be
	// coerced to the default's type and therefore kept the default.
	Mismatched []string
}

// Options tunes staleness evaluation.
type Options struct {
	// Now defaults to time.Now().
	Now time.Time
	// MaxStaleness overrides the bundle TTL when positive.
	MaxStaleness time.Duration
}

// Resolve returns a value for every key in defaults. Keys the bundle does
// not know, values of the wrong type, and stale or missing snapshots all
// yield the default verbatim.
func Resolve(snap *bundle.Snapshot, attrs, defaults map[string]any, opts Options) Resolution {
	res := Resolution{
		Values: make(map[string]any, len(defaults)),
		Source: SourceDefaults,
	}
	for k, v := range defaults {
		res.Values[k] = v
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	if snap.Stale(now, opts.MaxStaleness) {
		return res
	}

	b := snap.Bundle
	res.Source = SourceBundle
	res.BundleVersion = b.Version

	mismatched := map[string]struct{}{}
	apply := func(key string, value any) bool {
		v, ok := Coerce(value, defaults[key])
		if !ok {
			mismatched[key] = struct{}{}
			return false
		}
		res.Values[key] = v
		delete(mismatched, key)
		return true
	}

	for key := range defaults {
		if p, ok := b.Parameter(key); ok {
			apply(key, p.Default)
		}
	}

	unitKey, ok := UnitKey(attrs, b.UnitKeyAttribute())
	if ok {
		count := b.BucketCount()
		for _, layer := range b.Layers {
			bucket := bucketing.Bucket(unitKey, layer.ID, count)
			policy, alloc, found := selectAllocation(layer, attrs, bucket)
			if !found {
				continue
			}

			touched := false
			for key, value := range alloc.Overrides {
				if _, requested := defaults[key]; !requested {
					continue
				}
				if apply(key, value) {
					touched = true
				}
			}
			if touched {
				res.Assignments = append(res.Assignments, LayerAssignment{
					LayerID:    layer.ID,
					PolicyID:   policy.ID,
					Allocation: alloc.Name,
					Bucket:     bucket,
				})
			}
		}
	}

	for key := range mismatched {
		res.Mismatched = append(res.Mismatched, key)
	}
	sort.Strings(res.Mismatched)
	return res
}

// selectAllocation returns the first running policy in the layer whose
// conditions hold and which allocates bucket.
func selectAllocation(layer bundle.Layer, attrs map[string]any, bucket int) (bundle.Policy, bundle.Allocation, bool) {
	for _, policy := range layer.Policies {
		if policy.State != bundle.StateRunning {
			continue
		}
		if !bucketing.Match(policy.Conditions, attrs) {
			continue
		}
		for _, alloc := range policy.Allocations {
			if alloc.Buckets.Contains(bucket) {
				return policy, alloc, true
			}
		}
	}
	return bundle.Policy{}, bundle.Allocation{}, false
}

// UnitKey extracts the unit key from attrs. Strings and numbers are
// accepted; empty strings and other types are treated as absent.
func UnitKey(attrs map[string]any, attribute string) (string, bool) {
	v, ok := attrs[attribute]
	if !ok || v == nil {
		return "", false
	}
	switch k := v.(type) {
	case string:
		return k, k != ""
	case json.Number:
		return k.String(), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(k), true
	case float32, float64:
		f, _ := bucketing.ToFloat(k)
		return fmt.Sprint(f), true
	}
	return "", false
}
