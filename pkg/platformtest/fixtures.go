package platformtest

import (
	"time"

	"github.com/traffical/traffical-go/pkg/bucketing"
	"github.com/traffical/traffical-go/pkg/bundle"
	"github.com/traffical/traffical-go/pkg/config"
)

// Fixture identifiers used by SampleBundle.
const (
	ProjectID   = "proj_test"
	OrgID       = "org_test"
	Environment = "production"
)

// SampleBundle returns a prepared bundle with two layers:
//
//   - layer_checkout splits checkout.button.color 50/50 over 100 buckets.
//   - layer_pricing has a paused policy that must be ignored and a running
//     policy giving a 10% discount to units whose country is DE or FR.
func SampleBundle() *bundle.Bundle {
	b := &bundle.Bundle{
		Version:     1,
		ProjectID:   ProjectID,
		OrgID:       OrgID,
		Environment: Environment,
		GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TTLSeconds:  300,
		Hashing:     bundle.Hashing{UnitKey: "userId", BucketCount: 100},
		Parameters: []bundle.Parameter{
			{Key: "checkout.button.color", Type: config.TypeString, Default: "#000000", Namespace: "checkout"},
			{Key: "pricing.discount", Type: config.TypeNumber, Default: 0.0},
			{Key: "ui.dark_mode", Type: config.TypeBoolean, Default: false},
			{Key: "ui.banner", Type: config.TypeJSON, Default: map[string]any{"text": "hello", "visible": true}},
		},
		Layers: []bundle.Layer{
			{
				ID: "layer_checkout",
				Policies: []bundle.Policy{{
					ID:    "pol_button",
					State: bundle.StateRunning,
					Kind:  "static",
					Allocations: []bundle.Allocation{
						{Name: "control", Buckets: bucketing.Range{Start: 0, End: 50}, Overrides: map[string]any{"checkout.button.color": "#1a73e8"}},
						{Name: "treatment", Buckets: bucketing.Range{Start: 50, End: 100}, Overrides: map[string]any{"checkout.button.color": "#e8711a"}},
					},
				}},
			},
			{
				ID: "layer_pricing",
				Policies: []bundle.Policy{
					{
						ID:    "pol_paused",
						State: bundle.StatePaused,
						Allocations: []bundle.Allocation{
							{Name: "all", Buckets: bucketing.Range{Start: 0, End: 100}, Overrides: map[string]any{"pricing.discount": 50.0}},
						},
					},
					{
						ID:    "pol_eu",
						State: bundle.StateRunning,
						Conditions: []bucketing.Condition{
							{Attribute: "country", Operator: bucketing.OpIn, Value: []any{"DE", "FR"}},
						},
						Allocations: []bundle.Allocation{
							{Name: "eu_discount", Buckets: bucketing.Range{Start: 0, End: 100}, Overrides: map[string]any{"pricing.discount": 10.0}},
						},
					},
				},
			},
		},
		Events: []bundle.EventSchema{
			{Name: "purchase", ValueType: config.ValueCurrency, Unit: "USD"},
			{Name: "signup", ValueType: config.ValueCount},
		},
	}
	if err := b.Prepare(); err != nil {
		panic("platformtest: sample bundle is invalid: " + err.Error())
	}
	return b
}
