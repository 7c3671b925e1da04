package rag

import (
	"sort"
	"strings"
)

// FilterMode selects how filter conditions combine.
type FilterMode string

const (
	// FilterAll matches points that satisfy every condition.
	FilterAll FilterMode = "all"
	// FilterAny matches points that satisfy at least one condition.
	FilterAny FilterMode = "any"
)

// Condition is a single payload equality test.
type Condition struct {
	Key   string
	Value string
}

// Filter restricts a search to points whose payload satisfies its conditions.
type Filter struct {
	Mode       FilterMode
	Conditions []Condition
}

// ParseFilterMode resolves a user-supplied mode. The empty string is FilterAll.
// ok is false for any other unrecognised value.
func ParseFilterMode(s string) (mode FilterMode, ok bool) {
	switch FilterMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, true
	case FilterAny:
		return FilterAny, true
	default:
		return FilterMode(s), false
	}
}

// NewFilter builds a filter from a condition map. Conditions are ordered by
// key so the same map always yields the same filter. It returns nil when
// conditions is empty.
func NewFilter(mode FilterMode, conditions map[string]string) *Filter {
	if len(conditions) == 0 {
		return nil
	}
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := &Filter{Mode: mode, Conditions: make([]Condition, 0, len(keys))}
	for _, k := range keys {
		f.Conditions = append(f.Conditions, Condition{Key: k, Value: conditions[k]})
	}
	return f
}

// Matches evaluates the filter against a payload. A nil filter matches
// everything.
func (f *Filter) Matches(payload map[string]string) bool {
	if f == nil || len(f.Conditions) == 0 {
		return true
	}
	switch f.Mode {
	case FilterAny:
		for _, c := range f.Conditions {
			if v, ok := payload[c.Key]; ok && v == c.Value {
				return true
			}
		}
		return false
	default:
		for _, c := range f.Conditions {
			if v, ok := payload[c.Key]; !ok || v != c.Value {
				return false
			}
		}
		return true
	}
}
