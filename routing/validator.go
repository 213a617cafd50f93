package routing

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/eventrouter/routing/expression"
)

// Severity classifies validation issues. High severity blocks the
// mutation; low severity is advisory.
type Severity string

// Issue severities
const (
	SeverityNone Severity = "none"
	SeverityLow  Severity = "low"
	SeverityHigh Severity = "high"
)

// Issue is a single validation finding
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// Issue codes
const (
	IssueMissingField   = "missing_field"
	IssueBadPattern     = "bad_pattern"
	IssueBadTarget      = "bad_target"
	IssuePriorityRange  = "priority_out_of_range"
	IssueBadTTL         = "bad_ttl"
	IssueBadScope       = "bad_scope"
	IssueBadCondition   = "bad_condition"
	IssueBadForeach     = "bad_foreach"
	IssueBadResponse    = "bad_response_route"
	IssueSchema         = "schema_violation"
	IssueExactConflict  = "exact_conflict"
	IssueRedundantRoute = "redundant_route"
	IssueCircularRoute  = "circular_route"
)

// ValidationResult is the outcome of validating a draft
type ValidationResult struct {
	Accepted bool     `json:"accepted"`
	Severity Severity `json:"severity"`
	Issues   []Issue  `json:"issues,omitempty"`
}

func (r *ValidationResult) add(severity Severity, code, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity: severity,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (r *ValidationResult) finalize() {
	r.Accepted = true
	r.Severity = SeverityNone
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityHigh:
			r.Accepted = false
			r.Severity = SeverityHigh
			return
		case SeverityLow:
			r.Severity = SeverityLow
		}
	}
}

// draftSchema structurally validates raw drafts before the semantic
// checks run. Field types that fail here produce schema_violation
// issues with JSON pointer locations.
const draftSchema = `{
	"type": "object",
	"required": ["rule_id", "source_pattern", "target"],
	"properties": {
		"rule_id": {"type": "string", "minLength": 1, "maxLength": 256},
		"source_pattern": {"type": "string", "minLength": 1},
		"target": {"type": "string", "minLength": 1},
		"priority": {"type": "integer"},
		"ttl": {"type": "integer"},
		"scope": {"type": "string"},
		"foreach": {"type": "string"},
		"async": {"type": "boolean"},
		"mapping": {"type": "object"},
		"condition": {
			"type": "object",
			"properties": {
				"logic": {"type": "string", "enum": ["", "and", "or"]},
				"conditions": {
					"type": ["array", "null"],
					"items": {
						"type": "object",
						"required": ["field", "operator"],
						"properties": {
							"field": {"type": "string", "minLength": 1},
							"operator": {"type": "string"},
							"required": {"type": "boolean"}
						}
					}
				}
			}
		},
		"response_route": {
			"type": "object",
			"required": ["from", "to"],
			"properties": {
				"from": {"type": "string", "minLength": 1},
				"to": {"type": "string", "minLength": 1},
				"correlation": {"type": "string"}
			}
		}
	}
}`

var compiledDraftSchema = gojsonschema.NewStringLoader(draftSchema)

// Validator checks rule drafts for well-formedness and conflicts
// against the existing rule set. Pure: no stored state beyond bounds.
type Validator struct {
	minPriority int
	maxPriority int
}

// NewValidator creates a validator with the given priority bounds
func NewValidator(minPriority, maxPriority int) *Validator {
	return &Validator{minPriority: minPriority, maxPriority: maxPriority}
}

// Validate checks a draft against the grammar, bounds, and the
// existing rules. High-severity issues reject; low-severity issues are
// returned as warnings alongside acceptance.
func (v *Validator) Validate(draft Draft, existing []*RoutingRule) ValidationResult {
	var result ValidationResult

	v.checkStructure(draft, &result)
	v.checkFields(draft, &result)
	v.checkConflicts(draft, existing, &result)

	result.finalize()
	return result
}

// checkStructure runs the JSON Schema over the serialized draft
func (v *Validator) checkStructure(draft Draft, result *ValidationResult) {
	raw, err := json.Marshal(draft)
	if err != nil {
		result.add(SeverityHigh, IssueSchema, "draft not serializable: %v", err)
		return
	}

	schemaResult, err := gojsonschema.Validate(compiledDraftSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		result.add(SeverityHigh, IssueSchema, "schema validation failed: %v", err)
		return
	}
	for _, desc := range schemaResult.Errors() {
		result.add(SeverityHigh, IssueSchema, "%s: %s", desc.Field(), desc.Description())
	}
}

func (v *Validator) checkFields(draft Draft, result *ValidationResult) {
	if draft.RuleID == "" {
		result.add(SeverityHigh, IssueMissingField, "rule_id is required")
	}
	if draft.SourcePattern == "" {
		result.add(SeverityHigh, IssueMissingField, "source_pattern is required")
	} else if err := ValidatePattern(draft.SourcePattern); err != nil {
		result.add(SeverityHigh, IssueBadPattern, "source_pattern: %v", err)
	}
	if draft.Target == "" {
		result.add(SeverityHigh, IssueMissingField, "target is required")
	} else if err := ValidateEventName(draft.Target); err != nil {
		result.add(SeverityHigh, IssueBadTarget, "target: %v", err)
	}

	if draft.Priority < v.minPriority || draft.Priority > v.maxPriority {
		result.add(SeverityHigh, IssuePriorityRange,
			"priority %d outside bounds [%d, %d]", draft.Priority, v.minPriority, v.maxPriority)
	}
	if draft.TTL < 0 {
		result.add(SeverityHigh, IssueBadTTL, "ttl must be positive, got %d", draft.TTL)
	}
	if draft.Scope != "" && !ValidScope(draft.Scope) {
		result.add(SeverityHigh, IssueBadScope, "unknown scope %q", draft.Scope)
	}

	for _, condition := range draft.Condition.Conditions {
		if condition.Field == "" {
			result.add(SeverityHigh, IssueBadCondition, "condition field cannot be empty")
		}
		if !expression.KnownOperator(condition.Operator) {
			result.add(SeverityHigh, IssueBadCondition, "unknown operator %q", condition.Operator)
		}
	}
	if logic := draft.Condition.Logic; logic != "" && logic != expression.LogicAnd && logic != expression.LogicOr {
		result.add(SeverityHigh, IssueBadCondition, "unknown logic operator %q", logic)
	}

	if draft.Async {
		if draft.ResponseRoute == nil {
			result.add(SeverityHigh, IssueBadResponse, "async rules require a response_route")
		} else {
			if err := ValidatePattern(draft.ResponseRoute.From); err != nil {
				result.add(SeverityHigh, IssueBadResponse, "response_route.from: %v", err)
			}
			if err := ValidateEventName(draft.ResponseRoute.To); err != nil {
				result.add(SeverityHigh, IssueBadResponse, "response_route.to: %v", err)
			}
		}
	} else if draft.ResponseRoute != nil {
		result.add(SeverityLow, IssueBadResponse, "response_route is ignored for synchronous rules")
	}
}

// checkConflicts classifies the draft against the existing rule set
func (v *Validator) checkConflicts(draft Draft, existing []*RoutingRule, result *ValidationResult) {
	if draft.SourcePattern == "" || draft.Target == "" {
		return
	}

	for _, rule := range existing {
		if rule.RuleID == draft.RuleID {
			// modify re-validates against the rule's own previous body
			continue
		}
		if rule.SourcePattern == draft.SourcePattern && rule.Priority == draft.Priority {
			result.add(SeverityHigh, IssueExactConflict,
				"rule %s already routes %s at priority %d", rule.RuleID, rule.SourcePattern, rule.Priority)
			continue
		}
		if rule.Target == draft.Target && PatternsOverlap(rule.SourcePattern, draft.SourcePattern) {
			result.add(SeverityLow, IssueRedundantRoute,
				"overlaps rule %s (pattern %s) with the same target %s", rule.RuleID, rule.SourcePattern, rule.Target)
		}
	}

	if cycle := findCycle(draft, existing); len(cycle) > 0 {
		result.add(SeverityHigh, IssueCircularRoute,
			"rule would close a routing cycle: %s", formatCycle(cycle))
	}
}
