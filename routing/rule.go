// Package routing implements the dynamic event routing engine: a rule
// store with durable persistence and background expiry, a validating
// mutation surface with capability-scoped authorization, a dispatch
// bridge that taps the host event bus, and audit/decision
// introspection.
package routing

import (
	"time"

	"github.com/c360/eventrouter/routing/expression"
)

// Scope bounds which actors may later mutate a rule
type Scope string

// Rule scopes, narrowest to broadest
const (
	ScopeSelf          Scope = "self"
	ScopeChildren      Scope = "children"
	ScopeOrchestration Scope = "orchestration"
	ScopeGlobal        Scope = "global"
)

// ActorScope is the capability level granted to an actor
type ActorScope int

// Actor capability levels, strictly ordered by breadth
const (
	ActorScopeNone ActorScope = iota
	ActorScopeSelf
	ActorScopeChildren
	ActorScopeOrchestration
	ActorScopeGlobal
)

// String returns the string representation of an ActorScope
func (s ActorScope) String() string {
	switch s {
	case ActorScopeNone:
		return "none"
	case ActorScopeSelf:
		return "self"
	case ActorScopeChildren:
		return "children"
	case ActorScopeOrchestration:
		return "orchestration"
	case ActorScopeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// RequiredActorScope returns the minimum actor capability needed to
// mutate a rule carrying the given scope.
func RequiredActorScope(scope Scope) ActorScope {
	switch scope {
	case ScopeSelf:
		return ActorScopeSelf
	case ScopeChildren:
		return ActorScopeChildren
	case ScopeOrchestration:
		return ActorScopeOrchestration
	case ScopeGlobal:
		return ActorScopeGlobal
	default:
		return ActorScopeGlobal
	}
}

// ValidScope reports whether s names a known rule scope
func ValidScope(s Scope) bool {
	switch s {
	case ScopeSelf, ScopeChildren, ScopeOrchestration, ScopeGlobal:
		return true
	}
	return false
}

// ResponseRoute describes how an async rule's eventual result is
// routed back: events arriving on From whose payload passes the
// correlation filter are re-emitted to To.
type ResponseRoute struct {
	From        string `json:"from" yaml:"from"`
	To          string `json:"to" yaml:"to"`
	Correlation string `json:"correlation,omitempty" yaml:"correlation,omitempty"` // payload field holding the token, default "correlation_id"
}

// RoutingRule is the core entity: a declarative binding from an event
// name pattern to a target, with optional condition, transform,
// priority, and expiry.
type RoutingRule struct {
	RuleID        string                  `json:"rule_id" yaml:"rule_id"`
	SourcePattern string                  `json:"source_pattern" yaml:"source_pattern"`
	Target        string                  `json:"target" yaml:"target"`
	Condition     expression.ConditionSet `json:"condition,omitempty" yaml:"condition,omitempty"`
	Mapping       map[string]any          `json:"mapping,omitempty" yaml:"mapping,omitempty"`
	Foreach       string                  `json:"foreach,omitempty" yaml:"foreach,omitempty"`
	Priority      int                     `json:"priority" yaml:"priority"`
	TTL           int64                   `json:"ttl,omitempty" yaml:"ttl,omitempty"` // seconds, 0 = permanent
	ExpiresAt     *time.Time              `json:"expires_at,omitempty" yaml:"-"`
	Scope         Scope                   `json:"scope" yaml:"scope"`
	Async         bool                    `json:"async,omitempty" yaml:"async,omitempty"`
	ResponseRoute *ResponseRoute          `json:"response_route,omitempty" yaml:"response_route,omitempty"`

	CreatedBy  string    `json:"created_by" yaml:"-"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	ModifiedAt time.Time `json:"modified_at" yaml:"-"`
}

// Expired reports whether the rule is past its expiry at the given time
func (r *RoutingRule) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Lifetime returns how long the rule has existed relative to now
func (r *RoutingRule) Lifetime(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// computeExpiry derives the absolute expiry from TTL at write time
func computeExpiry(ttl int64, at time.Time) *time.Time {
	if ttl <= 0 {
		return nil
	}
	expires := at.Add(time.Duration(ttl) * time.Second)
	return &expires
}

// Draft is the caller-supplied body of an add_rule request, before
// validation and provenance stamping.
type Draft struct {
	RuleID        string                  `json:"rule_id" yaml:"rule_id"`
	SourcePattern string                  `json:"source_pattern" yaml:"source_pattern"`
	Target        string                  `json:"target" yaml:"target"`
	Condition     expression.ConditionSet `json:"condition,omitempty" yaml:"condition,omitempty"`
	Mapping       map[string]any          `json:"mapping,omitempty" yaml:"mapping,omitempty"`
	Foreach       string                  `json:"foreach,omitempty" yaml:"foreach,omitempty"`
	Priority      int                     `json:"priority" yaml:"priority"`
	TTL           int64                   `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Scope         Scope                   `json:"scope,omitempty" yaml:"scope,omitempty"`
	Async         bool                    `json:"async,omitempty" yaml:"async,omitempty"`
	ResponseRoute *ResponseRoute          `json:"response_route,omitempty" yaml:"response_route,omitempty"`
}

// materialize stamps a validated draft into a rule with provenance
func (d Draft) materialize(actor string, now time.Time) *RoutingRule {
	scope := d.Scope
	if scope == "" {
		scope = ScopeSelf
	}
	return &RoutingRule{
		RuleID:        d.RuleID,
		SourcePattern: d.SourcePattern,
		Target:        d.Target,
		Condition:     d.Condition,
		Mapping:       d.Mapping,
		Foreach:       d.Foreach,
		Priority:      d.Priority,
		TTL:           d.TTL,
		ExpiresAt:     computeExpiry(d.TTL, now),
		Scope:         scope,
		Async:         d.Async,
		ResponseRoute: d.ResponseRoute,
		CreatedBy:     actor,
		CreatedAt:     now,
		ModifiedAt:    now,
	}
}

// Update carries the mutable fields of a modify_rule request. Nil
// pointers leave the current value untouched.
type Update struct {
	SourcePattern *string                  `json:"source_pattern,omitempty"`
	Target        *string                  `json:"target,omitempty"`
	Condition     *expression.ConditionSet `json:"condition,omitempty"`
	Mapping       *map[string]any          `json:"mapping,omitempty"`
	Foreach       *string                  `json:"foreach,omitempty"`
	Priority      *int                     `json:"priority,omitempty"`
	TTL           *int64                   `json:"ttl,omitempty"`
	Scope         *Scope                   `json:"scope,omitempty"`
	Async         *bool                    `json:"async,omitempty"`
	ResponseRoute *ResponseRoute           `json:"response_route,omitempty"`
}

// apply produces the updated rule body, recomputing expiry when the
// TTL changes. The receiver is not modified.
func (u Update) apply(rule RoutingRule, now time.Time) RoutingRule {
	if u.SourcePattern != nil {
		rule.SourcePattern = *u.SourcePattern
	}
	if u.Target != nil {
		rule.Target = *u.Target
	}
	if u.Condition != nil {
		rule.Condition = *u.Condition
	}
	if u.Mapping != nil {
		rule.Mapping = *u.Mapping
	}
	if u.Foreach != nil {
		rule.Foreach = *u.Foreach
	}
	if u.Priority != nil {
		rule.Priority = *u.Priority
	}
	if u.TTL != nil {
		rule.TTL = *u.TTL
		rule.ExpiresAt = computeExpiry(*u.TTL, now)
	}
	if u.Scope != nil {
		rule.Scope = *u.Scope
	}
	if u.Async != nil {
		rule.Async = *u.Async
	}
	if u.ResponseRoute != nil {
		rule.ResponseRoute = u.ResponseRoute
	}
	rule.ModifiedAt = now
	return rule
}

// draft converts a rule back to draft form for re-validation
func (r RoutingRule) draft() Draft {
	return Draft{
		RuleID:        r.RuleID,
		SourcePattern: r.SourcePattern,
		Target:        r.Target,
		Condition:     r.Condition,
		Mapping:       r.Mapping,
		Foreach:       r.Foreach,
		Priority:      r.Priority,
		TTL:           r.TTL,
		Scope:         r.Scope,
		Async:         r.Async,
		ResponseRoute: r.ResponseRoute,
	}
}

// Filter narrows query_rules results. Zero values match everything.
type Filter struct {
	SourcePattern string `json:"source_pattern,omitempty"` // exact pattern match
	Target        string `json:"target,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`
	Scope         Scope  `json:"scope,omitempty"`
	MinPriority   *int   `json:"min_priority,omitempty"`
	MaxPriority   *int   `json:"max_priority,omitempty"`
}

// Matches reports whether a rule passes the filter
func (f Filter) Matches(rule *RoutingRule) bool {
	if f.SourcePattern != "" && rule.SourcePattern != f.SourcePattern {
		return false
	}
	if f.Target != "" && rule.Target != f.Target {
		return false
	}
	if f.CreatedBy != "" && rule.CreatedBy != f.CreatedBy {
		return false
	}
	if f.Scope != "" && rule.Scope != f.Scope {
		return false
	}
	if f.MinPriority != nil && rule.Priority < *f.MinPriority {
		return false
	}
	if f.MaxPriority != nil && rule.Priority > *f.MaxPriority {
		return false
	}
	return true
}

// MutationStatus is the definitive outcome of a mutation request
type MutationStatus string

// Mutation outcomes
const (
	StatusCreated  MutationStatus = "created"
	StatusUpdated  MutationStatus = "updated"
	StatusDeleted  MutationStatus = "deleted"
	StatusRejected MutationStatus = "rejected"
	StatusNotFound MutationStatus = "not_found"
)

// MutationResult is returned by every mutation operation. Issues are
// present on rejection and carry advisory warnings on acceptance.
type MutationResult struct {
	Status MutationStatus `json:"status"`
	RuleID string         `json:"rule_id"`
	Issues []Issue        `json:"issues,omitempty"`
}
