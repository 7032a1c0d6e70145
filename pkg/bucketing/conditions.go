package bucketing

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Operator is a targeting comparison.
type Operator string

const (
	OpEquals      Operator = "eq"
	OpNotEquals   Operator = "neq"
	OpIn          Operator = "in"
	OpNotIn       Operator = "nin"
	OpContains    Operator = "contains"
	OpGreater     Operator = "gt"
	OpGreaterEq   Operator = "gte"
	OpLess        Operator = "lt"
	OpLessEq      Operator = "lte"
	OpExists      Operator = "exists"
	OpGlobMatches Operator = "matches"
)

// Condition compares one context attribute against a value.
type Condition struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value,omitempty"`
}

// Match reports whether every condition holds for attrs. An empty
// condition list always matches.
func Match(conditions []Condition, attrs map[string]any) bool {
	for _, c := range conditions {
		if !c.Eval(attrs) {
			return false
		}
	}
	return true
}

// Eval evaluates a single condition. A missing attribute fails every
// operator except neq and nin.
func (c Condition) Eval(attrs map[string]any) bool {
	actual, present := attrs[c.Attribute]

	switch c.Operator {
	case OpExists:
		return present && actual != nil
	case OpNotEquals:
		return !present || !equal(actual, c.Value)
	case OpNotIn:
		return !present || !inList(actual, c.Value)
	}

	if !present || actual == nil {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return equal(actual, c.Value)
	case OpIn:
		return inList(actual, c.Value)
	case OpContains:
		s, ok := actual.(string)
		sub, ok2 := c.Value.(string)
		return ok && ok2 && strings.Contains(s, sub)
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		return compare(c.Operator, actual, c.Value)
	case OpGlobMatches:
		s, ok := actual.(string)
		pattern, ok2 := c.Value.(string)
		if !ok || !ok2 {
			return false
		}
		g, err := compileGlob(pattern)
		return err == nil && g.Match(s)
	default:
		return false
	}
}

func equal(a, b any) bool {
	if af, ok := ToFloat(a); ok {
		bf, ok := ToFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func inList(actual, list any) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(actual, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func compare(op Operator, a, b any) bool {
	af, ok := ToFloat(a)
	if !ok {
		return false
	}
	bf, ok := ToFloat(b)
	if !ok {
		return false
	}
	switch op {
	case OpGreater:
		return af > bf
	case OpGreaterEq:
		return af >= bf
	case OpLess:
		return af < bf
	case OpLessEq:
		return af <= bf
	}
	return false
}

// ToFloat converts any Go numeric value (or json.Number) to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

var globCache sync.Map // pattern -> glob.Glob

func compileGlob(pattern string) (glob.Glob, error) {
	if g, ok := globCache.Load(pattern); ok {
		return g.(glob.Glob), nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %q", pattern)
	}
	globCache.Store(pattern, g)
	return g, nil
}
