package config

import (
	"encoding/json"
	"math"
)

// ParameterType is the declared type of a parameter.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeBoolean ParameterType = "boolean"
	TypeJSON    ParameterType = "json"
)

// ParameterTypes lists every accepted parameter type.
var ParameterTypes = []ParameterType{TypeString, TypeNumber, TypeBoolean, TypeJSON}

// Valid reports whether t is one of ParameterTypes.
func (t ParameterType) Valid() bool {
	for _, known := range ParameterTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Accepts reports whether value is a legal default for a parameter of type t.
func (t ParameterType) Accepts(value any) bool {
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeNumber:
		return IsNumber(value)
	case TypeJSON:
		switch value.(type) {
		case map[string]any, []any:
			return true
		}
		return false
	default:
		return false
	}
}

// InferType guesses the parameter type of a decoded value.
func InferType(value any) (ParameterType, bool) {
	switch {
	case TypeString.Accepts(value):
		return TypeString, true
	case TypeBoolean.Accepts(value):
		return TypeBoolean, true
	case TypeNumber.Accepts(value):
		return TypeNumber, true
	case TypeJSON.Accepts(value):
		return TypeJSON, true
	}
	return "", false
}

// IsNumber reports whether v is any Go numeric value or a json.Number.
func IsNumber(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return !math.IsNaN(float64(n))
	case float64:
		return !math.IsNaN(n)
	case json.Number:
		_, err := n.Float64()
		return err == nil
	}
	return false
}

// ValueType describes how a tracked event's value is interpreted.
type ValueType string

const (
	ValueCurrency ValueType = "currency"
	ValueCount    ValueType = "count"
	ValueRate     ValueType = "rate"
	ValueBoolean  ValueType = "boolean"
)

// ValueTypes lists every accepted event value type.
var ValueTypes = []ValueType{ValueCurrency, ValueCount, ValueRate, ValueBoolean}

// Valid reports whether v is one of ValueTypes.
func (v ValueType) Valid() bool {
	for _, known := range ValueTypes {
		if v == known {
			return true
		}
	}
	return false
}
