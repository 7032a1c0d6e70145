package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `version: "1.0"
project:
  id: proj_123
  orgId: org_456
parameters:
  checkout.button.color:
    type: string
    default: "#1a73e8"
    description: Primary CTA color
    namespace: checkout
  pricing.discount_pct:
    type: number
    default: 10
  search.ranking:
    type: json
    default:
      boost: 1.5
      fields: [title, body]
  onboarding.enabled:
    type: boolean
    default: true
events:
  purchase:
    valueType: currency
    unit: USD
    description: Completed checkout
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "proj_123", cfg.Project.ID)
	assert.Equal(t, "org_456", cfg.Project.OrgID)
	require.Len(t, cfg.Parameters, 4)

	color := cfg.Parameters["checkout.button.color"]
	assert.Equal(t, TypeString, color.Type)
	assert.Equal(t, "#1a73e8", color.Default)
	assert.Equal(t, "checkout", color.Namespace)

	ranking := cfg.Parameters["search.ranking"].Default.(map[string]any)
	assert.Equal(t, 1.5, ranking["boost"])
	assert.Equal(t, []any{"title", "body"}, ranking["fields"])

	assert.Equal(t, ValueCurrency, cfg.Events["purchase"].ValueType)
	assert.NoError(t, cfg.Validate())
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("version: \"1.0\"\nproject:\n  id: p\nparamters: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paramters")
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse([]byte(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".traffical", "config.yaml")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestClone_IsDeep(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	clone := cfg.Clone()
	clone.Parameters["search.ranking"].Default.(map[string]any)["boost"] = 9.0
	delete(clone.Parameters, "onboarding.enabled")

	assert.Equal(t, 1.5, cfg.Parameters["search.ranking"].Default.(map[string]any)["boost"])
	assert.Contains(t, cfg.Parameters, "onboarding.enabled")
}

func TestSortedKeys(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"checkout.button.color", "onboarding.enabled", "pricing.discount_pct", "search.ranking"}, cfg.SortedParameterKeys())
	assert.Equal(t, []string{"purchase"}, cfg.SortedEventNames())
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := &Config{
		Parameters: map[string]Parameter{
			"Bad..key":         {Type: TypeString, Default: "x"},
			"ui.color":         {Type: TypeNumber, Default: "red"},
			"ui.layout":        {Type: "enum", Default: "grid"},
			"ui.missing":       {Type: TypeBoolean},
			"ui.widgets.order": {Type: TypeJSON, Default: "a,b"},
		},
		Events: map[string]Event{
			"Purchase": {ValueType: ValueCount},
			"signup":   {ValueType: "money"},
		},
	}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "9 problem(s)")
	assert.Contains(t, msg, "version is required")
	assert.Contains(t, msg, "project.id is required")
	assert.Contains(t, msg, `"Bad..key"`)
	assert.Contains(t, msg, `parameter "ui.color": default red does not match type number`)
	assert.Contains(t, msg, `unknown type "enum"`)
	assert.Contains(t, msg, `parameter "ui.missing": default is required`)
	assert.Contains(t, msg, `parameter "ui.widgets.order"`)
	assert.Contains(t, msg, `event name "Purchase" must be snake_case`)
	assert.Contains(t, msg, `unknown valueType "money"`)
}

func TestValidateParameterKey(t *testing.T) {
	valid := []string{"color", "checkout.button.color", "exp_1.variant-a", "v2.layout"}
	for _, key := range valid {
		assert.NoError(t, ValidateParameterKey(key), key)
	}

	invalid := []string{"", ".color", "color.", "a..b", "Checkout.color", "ui.$price", "ui._hidden"}
	for _, key := range invalid {
		assert.Error(t, ValidateParameterKey(key), key)
	}
}

func TestParameterTypeAccepts(t *testing.T) {
	tests := []struct {
		typ    ParameterType
		value  any
		accept bool
	}{
		{TypeString, "x", true},
		{TypeString, 1, false},
		{TypeNumber, 1, true},
		{TypeNumber, 1.5, true},
		{TypeNumber, json.Number("3"), true},
		{TypeNumber, "1", false},
		{TypeBoolean, false, true},
		{TypeBoolean, "true", false},
		{TypeJSON, map[string]any{"a": 1}, true},
		{TypeJSON, []any{1, 2}, true},
		{TypeJSON, "{}", false},
		{ParameterType("enum"), "x", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.accept, tt.typ.Accepts(tt.value), "%s accepts %#v", tt.typ, tt.value)
	}
}

func TestInferType(t *testing.T) {
	typ, ok := InferType(3.0)
	assert.True(t, ok)
	assert.Equal(t, TypeNumber, typ)

	typ, ok = InferType(map[string]any{})
	assert.True(t, ok)
	assert.Equal(t, TypeJSON, typ)

	_, ok = InferType(nil)
	assert.False(t, ok)
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, SchemaID, schema["$id"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "version")
	assert.Contains(t, props, "project")
	assert.Contains(t, props, "parameters")
	assert.Contains(t, props, "events")
	assert.Contains(t, string(data), `"boolean"`)
	assert.Contains(t, string(data), `"currency"`)
}

func TestNew(t *testing.T) {
	cfg := New("proj_1", "org_1")
	assert.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Parameters)
}
