package entitlement

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/tidwall/gjson"
)

// OpScript is an additional operator beyond spec.md's core list (§4.2):
// a sandboxed boolean JavaScript expression, evaluated in a fresh goja VM
// per call, matching the teacher's per-call script-engine isolation
// pattern. ctx is bound as the evaluation context object.
const OpScript Operator = "script"

var templatePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// evaluateCondition evaluates a single condition against a JSON-serialisable
// context map, using gjson for attribute-path lookups.
func evaluateCondition(cond Condition, context map[string]interface{}) (bool, error) {
	contextJSON, err := json.Marshal(context)
	if err != nil {
		return false, fmt.Errorf("marshal condition context: %w", err)
	}

	if cond.Operator == OpScript {
		return evaluateScript(cond, contextJSON)
	}
	if cond.Operator == OpTemplate {
		return evaluateTemplate(cond, contextJSON)
	}

	actual := gjson.GetBytes(contextJSON, cond.AttributePath)
	if !actual.Exists() {
		return false, nil
	}

	switch cond.Operator {
	case OpEquals:
		return actual.String() == fmt.Sprintf("%v", cond.Value), nil
	case OpNotEquals:
		return actual.String() != fmt.Sprintf("%v", cond.Value), nil
	case OpIn:
		return membership(actual.String(), cond.Value), nil
	case OpNotIn:
		return !membership(actual.String(), cond.Value), nil
	case OpContains:
		return strings.Contains(actual.String(), fmt.Sprintf("%v", cond.Value)), nil
	case OpStartsWith:
		return strings.HasPrefix(actual.String(), fmt.Sprintf("%v", cond.Value)), nil
	case OpEndsWith:
		return strings.HasSuffix(actual.String(), fmt.Sprintf("%v", cond.Value)), nil
	case OpGreaterThan:
		return numericCompare(actual, cond.Value, func(a, b float64) bool { return a > b })
	case OpLessThan:
		return numericCompare(actual, cond.Value, func(a, b float64) bool { return a < b })
	case OpBetween:
		return between(actual, cond.Value)
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

func membership(value string, set interface{}) bool {
	items, ok := set.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if fmt.Sprintf("%v", item) == value {
			return true
		}
	}
	return false
}

func numericCompare(actual gjson.Result, value interface{}, cmp func(a, b float64) bool) (bool, error) {
	a := actual.Float()
	b, err := toFloat(value)
	if err != nil {
		return false, err
	}
	return cmp(a, b), nil
}

func between(actual gjson.Result, value interface{}) (bool, error) {
	bounds, ok := value.([]interface{})
	if !ok || len(bounds) != 2 {
		return false, fmt.Errorf("between operator requires a two-element [min, max] value")
	}
	lo, err := toFloat(bounds[0])
	if err != nil {
		return false, err
	}
	hi, err := toFloat(bounds[1])
	if err != nil {
		return false, err
	}
	v := actual.Float()
	return v >= lo && v <= hi, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("cannot coerce %T to a number", v)
	}
}

// evaluateTemplate expands a "{{path}}" template in cond.Value against the
// context, then compares the expanded string to the value at AttributePath.
func evaluateTemplate(cond Condition, contextJSON []byte) (bool, error) {
	template, ok := cond.Value.(string)
	if !ok {
		return false, fmt.Errorf("template operator requires a string value")
	}
	expanded := templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		path := templatePattern.FindStringSubmatch(match)[1]
		return gjson.GetBytes(contextJSON, path).String()
	})
	actual := gjson.GetBytes(contextJSON, cond.AttributePath)
	return actual.String() == expanded, nil
}

// evaluateScript evaluates cond.Value as a boolean JavaScript expression in
// a fresh goja VM, with the condition context bound as the `ctx` global.
func evaluateScript(cond Condition, contextJSON []byte) (bool, error) {
	script, ok := cond.Value.(string)
	if !ok {
		return false, fmt.Errorf("script operator requires a string expression")
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(contextJSON, &parsed); err != nil {
		return false, fmt.Errorf("unmarshal script context: %w", err)
	}

	vm := goja.New()
	if err := vm.Set("ctx", parsed); err != nil {
		return false, fmt.Errorf("bind script context: %w", err)
	}

	result, err := vm.RunString(script)
	if err != nil {
		return false, fmt.Errorf("evaluate script condition: %w", err)
	}
	return result.ToBoolean(), nil
}
