package expression

import (
	"fmt"
	"strings"
)

// Evaluator evaluates condition sets against event payloads
type Evaluator struct {
	operators map[string]OperatorFunc
}

// NewEvaluator creates an evaluator with all supported operators registered
func NewEvaluator() *Evaluator {
	e := &Evaluator{operators: make(map[string]OperatorFunc)}

	e.operators[OpEqual] = operatorEqual
	e.operators[OpNotEqual] = operatorNotEqual
	e.operators[OpLessThan] = operatorLessThan
	e.operators[OpLessThanEqual] = operatorLessThanEqual
	e.operators[OpGreaterThan] = operatorGreaterThan
	e.operators[OpGreaterThanEqual] = operatorGreaterThanEqual

	e.operators[OpContains] = operatorContains
	e.operators[OpStartsWith] = operatorStartsWith
	e.operators[OpEndsWith] = operatorEndsWith
	e.operators[OpRegexMatch] = operatorRegex

	e.operators[OpIn] = operatorIn
	e.operators[OpNotIn] = operatorNotIn

	return e
}

// Evaluate evaluates a condition set against a payload. An empty set
// passes.
func (e *Evaluator) Evaluate(payload map[string]any, set ConditionSet) (bool, error) {
	if len(set.Conditions) == 0 {
		return true, nil
	}

	switch set.Logic {
	case LogicAnd, "": // default to AND
		for _, condition := range set.Conditions {
			result, err := e.evaluateCondition(payload, condition)
			if err != nil {
				return false, err
			}
			if !result {
				return false, nil
			}
		}
		return true, nil

	case LogicOr:
		for _, condition := range set.Conditions {
			result, err := e.evaluateCondition(payload, condition)
			if err != nil {
				return false, err
			}
			if result {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, &EvaluationError{
			Message: fmt.Sprintf("unsupported logic operator: %s", set.Logic),
		}
	}
}

func (e *Evaluator) evaluateCondition(payload map[string]any, condition Condition) (bool, error) {
	fieldValue, exists := LookupField(payload, condition.Field)

	if !exists {
		if condition.Required {
			return false, &EvaluationError{
				Field:   condition.Field,
				Message: "required field not found",
			}
		}
		// Optional field missing, condition fails
		return false, nil
	}

	opFunc, ok := e.operators[condition.Operator]
	if !ok {
		return false, &EvaluationError{
			Field:    condition.Field,
			Operator: condition.Operator,
			Message:  "unsupported operator",
		}
	}

	result, err := opFunc(fieldValue, condition.Value)
	if err != nil {
		return false, &EvaluationError{
			Field:    condition.Field,
			Operator: condition.Operator,
			Message:  "operator execution failed",
			Err:      err,
		}
	}
	return result, nil
}

// LookupField resolves a dot-notation path into a nested payload map.
// Returns the value and whether the full path resolved.
func LookupField(payload map[string]any, field string) (any, bool) {
	if field == "" {
		return nil, false
	}

	// Fast path for flat keys, including keys that contain dots
	if value, ok := payload[field]; ok {
		return value, true
	}

	parts := strings.Split(field, ".")
	current := any(payload)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Operator implementations

func operatorEqual(fieldValue, compareValue any) (bool, error) {
	return compareValues(fieldValue, compareValue) == 0, nil
}

func operatorNotEqual(fieldValue, compareValue any) (bool, error) {
	return compareValues(fieldValue, compareValue) != 0, nil
}

func operatorLessThan(fieldValue, compareValue any) (bool, error) {
	cmp, err := compareValuesStrict(fieldValue, compareValue)
	if err != nil {
		return false, err
	}
	return cmp < 0, nil
}

func operatorLessThanEqual(fieldValue, compareValue any) (bool, error) {
	cmp, err := compareValuesStrict(fieldValue, compareValue)
	if err != nil {
		return false, err
	}
	return cmp <= 0, nil
}

func operatorGreaterThan(fieldValue, compareValue any) (bool, error) {
	cmp, err := compareValuesStrict(fieldValue, compareValue)
	if err != nil {
		return false, err
	}
	return cmp > 0, nil
}

func operatorGreaterThanEqual(fieldValue, compareValue any) (bool, error) {
	cmp, err := compareValuesStrict(fieldValue, compareValue)
	if err != nil {
		return false, err
	}
	return cmp >= 0, nil
}

func operatorContains(fieldValue, compareValue any) (bool, error) {
	return strings.Contains(asString(fieldValue), asString(compareValue)), nil
}

func operatorStartsWith(fieldValue, compareValue any) (bool, error) {
	return strings.HasPrefix(asString(fieldValue), asString(compareValue)), nil
}

func operatorEndsWith(fieldValue, compareValue any) (bool, error) {
	return strings.HasSuffix(asString(fieldValue), asString(compareValue)), nil
}

func operatorRegex(fieldValue, compareValue any) (bool, error) {
	pattern, ok := compareValue.(string)
	if !ok {
		return false, fmt.Errorf("regex pattern must be a string")
	}

	re, err := compileRegex(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(asString(fieldValue)), nil
}

func operatorIn(fieldValue, compareValue any) (bool, error) {
	items, ok := compareValue.([]any)
	if !ok {
		return false, fmt.Errorf("in operator requires an array value")
	}
	for _, item := range items {
		if compareValues(fieldValue, item) == 0 {
			return true, nil
		}
	}
	return false, nil
}

func operatorNotIn(fieldValue, compareValue any) (bool, error) {
	result, err := operatorIn(fieldValue, compareValue)
	if err != nil {
		return false, err
	}
	return !result, nil
}

// Value comparison helpers

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func compareValues(a, b any) int {
	result, _ := compareValuesStrict(a, b)
	return result
}

// compareValuesStrict compares numerically when both sides are numeric,
// lexically otherwise.
func compareValuesStrict(a, b any) (int, error) {
	aNum, aIsNum := toFloat64(a)
	bNum, bIsNum := toFloat64(b)

	if aIsNum && bIsNum {
		switch {
		case aNum < bNum:
			return -1, nil
		case aNum > bNum:
			return 1, nil
		}
		return 0, nil
	}

	aStr := asString(a)
	bStr := asString(b)
	switch {
	case aStr < bStr:
		return -1, nil
	case aStr > bStr:
		return 1, nil
	}
	return 0, nil
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
