// Package expression implements the condition DSL evaluated against
// event payloads during rule matching.
package expression

import "fmt"

// Condition is a single field/operator/value predicate. Field uses
// dot notation into the event payload (e.g. "sensor.battery.level").
type Condition struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// ConditionSet combines conditions with a logic operator
type ConditionSet struct {
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Logic      string      `json:"logic,omitempty" yaml:"logic,omitempty"` // "and" (default), "or"
}

// IsEmpty reports whether the set has no conditions
func (s ConditionSet) IsEmpty() bool {
	return len(s.Conditions) == 0
}

// OperatorFunc implements a comparison operator
type OperatorFunc func(fieldValue, compareValue any) (bool, error)

// Supported operators
const (
	OpEqual            = "eq"
	OpNotEqual         = "ne"
	OpLessThan         = "lt"
	OpLessThanEqual    = "lte"
	OpGreaterThan      = "gt"
	OpGreaterThanEqual = "gte"

	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpEndsWith   = "ends_with"
	OpRegexMatch = "regex"

	OpIn    = "in"
	OpNotIn = "not_in"
)

// Logic operators
const (
	LogicAnd = "and"
	LogicOr  = "or"
)

// KnownOperator reports whether op names a registered operator
func KnownOperator(op string) bool {
	switch op {
	case OpEqual, OpNotEqual, OpLessThan, OpLessThanEqual,
		OpGreaterThan, OpGreaterThanEqual,
		OpContains, OpStartsWith, OpEndsWith, OpRegexMatch,
		OpIn, OpNotIn:
		return true
	}
	return false
}

// EvaluationError describes a failure while evaluating a condition
type EvaluationError struct {
	Field    string
	Operator string
	Message  string
	Err      error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation error for field '%s' with operator '%s': %s: %v",
			e.Field, e.Operator, e.Message, e.Err)
	}
	return fmt.Sprintf("evaluation error for field '%s' with operator '%s': %s",
		e.Field, e.Operator, e.Message)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
