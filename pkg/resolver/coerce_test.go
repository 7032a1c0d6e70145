package resolver

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type color string

type banner struct {
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
	Weight  int    `json:"weight"`
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		value any
		def   any
		want  any
		ok    bool
	}{
		{"string", "red", "blue", "red", true},
		{"named string", "red", color("blue"), color("red"), true},
		{"string from number", 1, "blue", nil, false},
		{"bool", true, false, true, true},
		{"bool from string", "true", false, nil, false},
		{"int from float", 3.0, 1, 3, true},
		{"int from fractional float", 3.5, 1, nil, false},
		{"int from json.Number", json.Number("12"), 1, 12, true},
		{"int8 overflow", 300, int8(1), nil, false},
		{"uint from negative", -1, uint(1), nil, false},
		{"uint64 large", uint64(math.MaxUint64), uint64(0), uint64(math.MaxUint64), true},
		{"float from int", 2, 1.5, 2.0, true},
		{"float32", json.Number("0.25"), float32(1), float32(0.25), true},
		{"float from bool", true, 1.5, nil, false},
		{"float from string", "1.5", 1.5, nil, false},
		{"nil value", nil, "x", nil, false},
		{"nil default accepts anything", json.Number("4"), nil, 4.0, true},
		{
			"map default",
			map[string]any{"a": json.Number("1"), "b": "x"},
			map[string]any{},
			map[string]any{"a": 1.0, "b": "x"},
			true,
		},
		{"slice default", []any{"a", "b"}, []string{}, []string{"a", "b"}, true},
		{"slice from string", "a,b", []string{}, nil, false},
		{
			"struct default",
			map[string]any{"text": "hi", "visible": true, "weight": json.Number("3")},
			banner{},
			banner{Text: "hi", Visible: true, Weight: 3},
			true,
		},
		{
			"pointer default",
			map[string]any{"text": "hi"},
			&banner{},
			&banner{Text: "hi"},
			true,
		},
		{"struct from wrong shape", map[string]any{"text": []any{1}}, banner{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Coerce(tt.value, tt.def)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGet(t *testing.T) {
	values := map[string]any{
		"color":  "red",
		"size":   12.0,
		"flag":   true,
		"tags":   []any{"a", "b"},
		"banner": map[string]any{"text": "hi"},
	}

	assert.Equal(t, "red", Get(values, "color", "blue"))
	assert.Equal(t, 12, Get(values, "size", 0))
	assert.Equal(t, 12.0, Get(values, "size", 0.0))
	assert.True(t, Get(values, "flag", false))
	assert.Equal(t, []string{"a", "b"}, Get(values, "tags", []string(nil)))
	assert.Equal(t, banner{Text: "hi"}, Get(values, "banner", banner{}))

	assert.Equal(t, "blue", Get(values, "missing", "blue"))
	assert.Equal(t, 5, Get(values, "color", 5), "uncoercible value falls back to the default")
}
