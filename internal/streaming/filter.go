package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// matches evaluates filter against payload. Field keys are gjson path
// expressions so a filter can reach nested payload fields (e.g.
// "instrument.code"), not just top-level keys. Missing fields in the
// payload evaluate to "does not match" (§4.6). An empty filter always
// matches.
func (f Filter) matches(payload map[string]interface{}) bool {
	if len(f) == 0 {
		return true
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	for field, spec := range f {
		result := gjson.GetBytes(payloadJSON, field)
		if !result.Exists() {
			return false
		}
		if !matchSpec(spec, result.Value()) {
			return false
		}
	}
	return true
}

func matchSpec(spec interface{}, value interface{}) bool {
	switch s := spec.(type) {
	case RangeFilter:
		return inRange(s, value)
	case map[string]interface{}:
		if min, hasMin := s["min"]; hasMin {
			max := s["max"]
			return inRange(RangeFilter{Min: min, Max: max}, value)
		}
		return fmt.Sprintf("%v", spec) == fmt.Sprintf("%v", value)
	case []interface{}:
		for _, item := range s {
			if fmt.Sprintf("%v", item) == fmt.Sprintf("%v", value) {
				return true
			}
		}
		return false
	default:
		return fmt.Sprintf("%v", spec) == fmt.Sprintf("%v", value)
	}
}

func inRange(r RangeFilter, value interface{}) bool {
	v, ok := toFloat(value)
	if !ok {
		return false
	}
	if r.Min != nil {
		min, ok := toFloat(r.Min)
		if ok && v < min {
			return false
		}
	}
	if r.Max != nil {
		max, ok := toFloat(r.Max)
		if ok && v >= max {
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
