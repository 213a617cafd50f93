package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventrouter/routing/expression"
)

func newTestValidator() *Validator {
	return NewValidator(0, 10000)
}

func validDraft(id string) Draft {
	return Draft{
		RuleID:        id,
		SourcePattern: "test:*",
		Target:        "out:" + id,
		Priority:      100,
	}
}

func hasIssue(issues []Issue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

func TestValidator_AcceptsWellFormedDraft(t *testing.T) {
	result := newTestValidator().Validate(validDraft("r1"), nil)

	assert.True(t, result.Accepted)
	assert.Equal(t, SeverityNone, result.Severity)
	assert.Empty(t, result.Issues)
}

func TestValidator_AcceptsDraftWithoutCondition(t *testing.T) {
	// A zero ConditionSet serializes with a null conditions array; the
	// structural schema must still accept it
	result := newTestValidator().Validate(Draft{
		RuleID:        "bare",
		SourcePattern: "sensor:*",
		Target:        "out:bare",
		Priority:      100,
	}, nil)

	assert.True(t, result.Accepted)
	assert.False(t, hasIssue(result.Issues, IssueSchema), "unexpected schema issue: %+v", result.Issues)
}

func TestValidator_RequiredFields(t *testing.T) {
	result := newTestValidator().Validate(Draft{}, nil)

	require.False(t, result.Accepted)
	assert.Equal(t, SeverityHigh, result.Severity)
	assert.True(t, hasIssue(result.Issues, IssueMissingField))
}

func TestValidator_FieldChecks(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Draft)
		wantCode string
	}{
		{"bad pattern grammar", func(d *Draft) { d.SourcePattern = "a::b" }, IssueBadPattern},
		{"wildcard target", func(d *Draft) { d.Target = "out:*" }, IssueBadTarget},
		{"priority above bounds", func(d *Draft) { d.Priority = 10001 }, IssuePriorityRange},
		{"priority below bounds", func(d *Draft) { d.Priority = -1 }, IssuePriorityRange},
		{"negative ttl", func(d *Draft) { d.TTL = -5 }, IssueBadTTL},
		{"unknown scope", func(d *Draft) { d.Scope = "galaxy" }, IssueBadScope},
		{"unknown operator", func(d *Draft) {
			d.Condition = expression.ConditionSet{Conditions: []expression.Condition{
				{Field: "x", Operator: "between", Value: 1},
			}}
		}, IssueBadCondition},
		{"unknown logic", func(d *Draft) {
			d.Condition = expression.ConditionSet{
				Conditions: []expression.Condition{{Field: "x", Operator: "eq", Value: 1}},
				Logic:      "xor",
			}
		}, IssueBadCondition},
		{"async without response route", func(d *Draft) { d.Async = true }, IssueBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := validDraft("r1")
			tt.mutate(&draft)

			result := newTestValidator().Validate(draft, nil)
			assert.False(t, result.Accepted)
			assert.True(t, hasIssue(result.Issues, tt.wantCode), "expected issue %s in %+v", tt.wantCode, result.Issues)
		})
	}
}

func TestValidator_ResponseRouteOnSyncRuleIsAdvisory(t *testing.T) {
	draft := validDraft("r1")
	draft.ResponseRoute = &ResponseRoute{From: "resp:*", To: "out:final"}

	result := newTestValidator().Validate(draft, nil)
	assert.True(t, result.Accepted)
	assert.Equal(t, SeverityLow, result.Severity)
	assert.True(t, hasIssue(result.Issues, IssueBadResponse))
}

func TestValidator_ExactConflictBlocks(t *testing.T) {
	existing := []*RoutingRule{{
		RuleID: "r1", SourcePattern: "test:*", Target: "out:a", Priority: 100,
	}}

	draft := validDraft("r2")
	draft.Target = "out:b" // different target, same pattern + priority

	result := newTestValidator().Validate(draft, existing)
	assert.False(t, result.Accepted)
	assert.True(t, hasIssue(result.Issues, IssueExactConflict))
}

func TestValidator_RedundantRouteWarns(t *testing.T) {
	existing := []*RoutingRule{{
		RuleID: "r1", SourcePattern: "test:*", Target: "out:same", Priority: 100,
	}}

	draft := Draft{
		RuleID:        "r2",
		SourcePattern: "test:event",
		Target:        "out:same",
		Priority:      200,
	}

	result := newTestValidator().Validate(draft, existing)
	assert.True(t, result.Accepted)
	assert.Equal(t, SeverityLow, result.Severity)
	assert.True(t, hasIssue(result.Issues, IssueRedundantRoute))
}

func TestValidator_SelfRevalidationIgnoresOwnBody(t *testing.T) {
	// A modify re-validates against the set containing the rule itself
	existing := []*RoutingRule{{
		RuleID: "r1", SourcePattern: "test:*", Target: "out:a", Priority: 100,
	}}

	draft := Draft{RuleID: "r1", SourcePattern: "test:*", Target: "out:a", Priority: 100}

	result := newTestValidator().Validate(draft, existing)
	assert.True(t, result.Accepted)
}

func TestValidator_CircularRouteBlocks(t *testing.T) {
	existing := []*RoutingRule{
		{RuleID: "r1", SourcePattern: "a:*", Target: "b:next", Priority: 100},
		{RuleID: "r2", SourcePattern: "b:*", Target: "c:next", Priority: 100},
	}

	// c:* -> a:start closes the loop a -> b -> c -> a
	draft := Draft{RuleID: "r3", SourcePattern: "c:*", Target: "a:start", Priority: 100}

	result := newTestValidator().Validate(draft, existing)
	assert.False(t, result.Accepted)
	assert.True(t, hasIssue(result.Issues, IssueCircularRoute))
}

func TestValidator_SelfLoopBlocks(t *testing.T) {
	draft := Draft{RuleID: "r1", SourcePattern: "loop:*", Target: "loop:again", Priority: 100}

	result := newTestValidator().Validate(draft, nil)
	assert.False(t, result.Accepted)
	assert.True(t, hasIssue(result.Issues, IssueCircularRoute))
}

func TestValidator_ChainWithoutCycleAccepted(t *testing.T) {
	existing := []*RoutingRule{
		{RuleID: "r1", SourcePattern: "a:*", Target: "b:next", Priority: 100},
	}

	draft := Draft{RuleID: "r2", SourcePattern: "b:*", Target: "c:done", Priority: 100}

	result := newTestValidator().Validate(draft, existing)
	assert.True(t, result.Accepted)
}

func TestFindCycle_ReportsChain(t *testing.T) {
	existing := []*RoutingRule{
		{RuleID: "r1", SourcePattern: "b:*", Target: "a:start"},
	}
	draft := Draft{RuleID: "r0", SourcePattern: "a:*", Target: "b:go"}

	cycle := findCycle(draft, existing)
	require.NotEmpty(t, cycle)
	assert.Equal(t, "r0", cycle[0].id)
}
