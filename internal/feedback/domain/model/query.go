package model

import (
	"fmt"
	"reflect"
)

// Query describes a live subscription: a collection and equality filters
// the store must apply before delivering documents.
type Query struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`
}

// Filter represents a single filter condition in a query (where clause).
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"op"`
	Value    interface{} `json:"value"`
}

// Operator types for filters. Only equality is needed by the core.
const (
	OperatorEqual = "=="
)

// OwnerQuery returns the query for records owned by identity.
func OwnerQuery(collection, identity string) Query {
	return Query{
		Collection: collection,
		Filters:    []Filter{{Field: FieldUserID, Operator: OperatorEqual, Value: identity}},
	}
}

// Validate rejects queries the stores cannot evaluate.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query collection is required")
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("filter field is required")
		}
		if f.Operator != OperatorEqual {
			return fmt.Errorf("unsupported filter operator %q", f.Operator)
		}
	}
	return nil
}

// Matches reports whether data satisfies every filter of q.
func (q Query) Matches(data map[string]interface{}) bool {
	for _, f := range q.Filters {
		v, ok := data[f.Field]
		if !ok || !valuesEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// EqualityValue returns the value a filter on field pins, if any.
func (q Query) EqualityValue(field string) (interface{}, bool) {
	for _, f := range q.Filters {
		if f.Field == field && f.Operator == OperatorEqual {
			return f.Value, true
		}
	}
	return nil, false
}

func valuesEqual(a, b interface{}) bool {
	if a == b {
		return true
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
