package types

import (
	"encoding/json"
	"math"
	"strconv"
)

// Section is one named category of metrics: metric name → number, string,
// or nested mapping. The merge engine treats it as opaque.
type Section map[string]any

// Git section fields that get field-level reconciliation when the
// pull-request source is degraded.
const (
	FieldPRMergedCount   = "pr_merged_count"
	FieldPRMergedByMonth = "pr_merged_by_month"
)

// Clone returns a shallow copy. Nested values are shared, which is safe
// because sections are never mutated in place after construction.
func (s Section) Clone() Section {
	if s == nil {
		return nil
	}
	out := make(Section, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Int returns the integer value of key, or 0 when the key is missing or not numeric.
func (s Section) Int(key string) int64 {
	return toInt(s[key])
}

// Map returns the nested mapping stored at key, or nil.
func (s Section) Map(key string) map[string]any {
	switch v := s[key].(type) {
	case map[string]any:
		return v
	case Section:
		return v
	case map[string]int:
		out := make(map[string]any, len(v))
		for k, n := range v {
			out[k] = n
		}
		return out
	}
	return nil
}

// Text returns the string value of key, or "".
func (s Section) Text(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case int32:
		return int64(n)
	case float64:
		return int64(math.Round(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(math.Round(f))
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

// MonthCounts converts a month-bucketed counter into a Section-compatible mapping.
func MonthCounts(counts map[string]int) map[string]any {
	out := make(map[string]any, len(counts))
	for month, n := range counts {
		out[month] = n
	}
	return out
}
