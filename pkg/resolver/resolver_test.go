package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffical/traffical-go/pkg/bundle"
	"github.com/traffical/traffical-go/pkg/platformtest"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func freshSnapshot() *bundle.Snapshot {
	return &bundle.Snapshot{Bundle: platformtest.SampleBundle(), FetchedAt: now}
}

func defaults() map[string]any {
	return map[string]any{
		"checkout.button.color": "#ffffff",
		"pricing.discount":      5,
		"ui.dark_mode":          true,
		"unknown.key":           "fallback",
	}
}

func TestResolve_NoBundleReturnsDefaults(t *testing.T) {
	res := Resolve(nil, map[string]any{"userId": "user-1"}, defaults(), Options{Now: now})

	assert.Equal(t, SourceDefaults, res.Source)
	assert.Equal(t, defaults(), res.Values)
	assert.Empty(t, res.Assignments)
	assert.Zero(t, res.BundleVersion)
}

func TestResolve_StaleBundleReturnsDefaults(t *testing.T) {
	snap := freshSnapshot()
	res := Resolve(snap, map[string]any{"userId": "user-1"}, defaults(), Options{Now: now.Add(301 * time.Second)})
	assert.Equal(t, SourceDefaults, res.Source)
	assert.Equal(t, defaults(), res.Values)

	res = Resolve(snap, map[string]any{"userId": "user-1"}, defaults(), Options{
		Now:          now.Add(301 * time.Second),
		MaxStaleness: time.Hour,
	})
	assert.Equal(t, SourceBundle, res.Source)
}

func TestResolve_AssignsByBucket(t *testing.T) {
	snap := freshSnapshot()

	// user-1 hashes to bucket 36 in layer_checkout, 42 to bucket 81.
	control := Resolve(snap, map[string]any{"userId": "user-1"}, defaults(), Options{Now: now})
	assert.Equal(t, SourceBundle, control.Source)
	assert.Equal(t, int64(1), control.BundleVersion)
	assert.Equal(t, "#1a73e8", control.Values["checkout.button.color"])
	require.Len(t, control.Assignments, 1)
	assert.Equal(t, LayerAssignment{LayerID: "layer_checkout", PolicyID: "pol_button", Allocation: "control", Bucket: 36}, control.Assignments[0])

	treatment := Resolve(snap, map[string]any{"userId": 42}, defaults(), Options{Now: now})
	assert.Equal(t, "#e8711a", treatment.Values["checkout.button.color"])
	require.Len(t, treatment.Assignments, 1)
	assert.Equal(t, "treatment", treatment.Assignments[0].Allocation)
	assert.Equal(t, 81, treatment.Assignments[0].Bucket)
}

func TestResolve_Deterministic(t *testing.T) {
	snap := freshSnapshot()
	attrs := map[string]any{"userId": "user-3", "country": "DE"}

	first := Resolve(snap, attrs, defaults(), Options{Now: now})
	for i := 0; i < 50; i++ {
		again := Resolve(snap, attrs, defaults(), Options{Now: now})
		assert.Equal(t, first, again)
	}
}

func TestResolve_BundleDefaultsAndTypes(t *testing.T) {
	res := Resolve(freshSnapshot(), map[string]any{}, defaults(), Options{Now: now})

	// no unit key: bundle defaults apply, no layer runs
	assert.Equal(t, SourceBundle, res.Source)
	assert.Equal(t, "#000000", res.Values["checkout.button.color"])
	assert.Equal(t, 0, res.Values["pricing.discount"], "numeric bundle default coerced to the int default")
	assert.Equal(t, false, res.Values["ui.dark_mode"])
	assert.Equal(t, "fallback", res.Values["unknown.key"])
	assert.Empty(t, res.Assignments)
}

func TestResolve_ConditionsAndPausedPolicies(t *testing.T) {
	snap := freshSnapshot()

	eu := Resolve(snap, map[string]any{"userId": "user-2", "country": "FR"}, defaults(), Options{Now: now})
	assert.Equal(t, 10, eu.Values["pricing.discount"], "running EU policy applies, paused one is skipped")

	us := Resolve(snap, map[string]any{"userId": "user-2", "country": "US"}, defaults(), Options{Now: now})
	assert.Equal(t, 0, us.Values["pricing.discount"])
	for _, a := range us.Assignments {
		assert.NotEqual(t, "layer_pricing", a.LayerID)
	}
}

func TestResolve_TypeMismatchKeepsDefault(t *testing.T) {
	defs := map[string]any{
		"checkout.button.color": 7,
		"ui.dark_mode":          "yes",
	}
	res := Resolve(freshSnapshot(), map[string]any{"userId": "user-1"}, defs, Options{Now: now})

	assert.Equal(t, 7, res.Values["checkout.button.color"])
	assert.Equal(t, "yes", res.Values["ui.dark_mode"])
	assert.Equal(t, []string{"checkout.button.color", "ui.dark_mode"}, res.Mismatched)
	assert.Empty(t, res.Assignments, "a layer whose overrides were all rejected is not an exposure")
}

func TestResolve_OnlyRequestedKeys(t *testing.T) {
	res := Resolve(freshSnapshot(), map[string]any{"userId": "user-1"}, map[string]any{"ui.dark_mode": true}, Options{Now: now})

	assert.Len(t, res.Values, 1)
	assert.Empty(t, res.Assignments)
}

func TestResolve_DoesNotMutateDefaults(t *testing.T) {
	defs := defaults()
	Resolve(freshSnapshot(), map[string]any{"userId": "user-1"}, defs, Options{Now: now})
	assert.Equal(t, defaults(), defs)
}

func TestUnitKey(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
		ok    bool
	}{
		{"string", "abc", "abc", true},
		{"empty string", "", "", false},
		{"int", 42, "42", true},
		{"uint", uint8(7), "7", true},
		{"float", 1.5, "1.5", true},
		{"integral float", 42.0, "42", true},
		{"nil", nil, "", false},
		{"map", map[string]any{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UnitKey(map[string]any{"id": tt.value}, "id")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := UnitKey(map[string]any{}, "id")
	assert.False(t, ok)
}
