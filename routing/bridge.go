package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/eventrouter/routing/expression"
)

// DispatchPolicy controls how multiple matching bindings fire
type DispatchPolicy string

const (
	// DispatchFanOut fires every matching binding independently (default)
	DispatchFanOut DispatchPolicy = "fan_out"
	// DispatchPriorityWins fires only the highest-priority matching bindings
	DispatchPriorityWins DispatchPolicy = "priority_wins"
)

// binding is the active, compiled, dispatch-ready form of a rule. The
// active flag lets a deactivation racing with an in-flight dispatch
// cleanly decline the emission.
type binding struct {
	rule   RoutingRule
	active atomic.Bool
}

// Bridge compiles stored rules into active dispatch bindings and taps
// the host event bus. All bindings for an incoming event are evaluated
// against a snapshot taken under a read lock; condition evaluation,
// mapping, and target emission happen outside the lock.
type Bridge struct {
	bus          Bus
	tracker      *Tracker
	trail        *Trail
	evaluator    *expression.Evaluator
	correlations *correlationTable
	metrics      *routingMetrics
	policy       DispatchPolicy
	logger       *slog.Logger

	mu       sync.RWMutex
	bindings map[string]*binding
}

// NewBridge creates a bridge over the host bus
func NewBridge(bus Bus, tracker *Tracker, trail *Trail, policy DispatchPolicy,
	correlationCap int, correlationWindow time.Duration, metrics *routingMetrics) *Bridge {
	if policy == "" {
		policy = DispatchFanOut
	}
	return &Bridge{
		bus:          bus,
		tracker:      tracker,
		trail:        trail,
		evaluator:    expression.NewEvaluator(),
		correlations: newCorrelationTable(correlationCap, correlationWindow),
		metrics:      metrics,
		policy:       policy,
		logger:       slog.Default().With("component", "transformer-bridge"),
		bindings:     make(map[string]*binding),
	}
}

// Start taps the event bus. Dispatch runs on the bus's delivery
// context until ctx is done.
func (b *Bridge) Start(ctx context.Context) error {
	return b.bus.Subscribe(ctx, b.dispatch)
}

// Activate compiles a rule into an active binding, replacing any
// existing binding for the same rule id.
func (b *Bridge) Activate(rule *RoutingRule) {
	compiled := &binding{rule: *rule}
	compiled.active.Store(true)

	b.mu.Lock()
	if previous, ok := b.bindings[rule.RuleID]; ok {
		previous.active.Store(false)
	}
	b.bindings[rule.RuleID] = compiled
	count := len(b.bindings)
	b.mu.Unlock()

	b.metrics.setActiveBindings(count)
	b.logger.Debug("Binding activated", "rule", rule.RuleID, "pattern", rule.SourcePattern, "target", rule.Target)
}

// Deactivate removes a binding. Unknown ids are a no-op.
func (b *Bridge) Deactivate(ruleID string) {
	b.mu.Lock()
	bound, ok := b.bindings[ruleID]
	if ok {
		bound.active.Store(false)
		delete(b.bindings, ruleID)
	}
	count := len(b.bindings)
	b.mu.Unlock()

	if ok {
		b.metrics.setActiveBindings(count)
		b.logger.Debug("Binding deactivated", "rule", ruleID)
	}
}

// ActiveRuleIDs returns the ids of all active bindings
func (b *Bridge) ActiveRuleIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.bindings))
	for id := range b.bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveCount returns the number of active bindings
func (b *Bridge) ActiveCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bindings)
}

// SweepCorrelations garbage-collects pending correlations past the
// expiry window.
func (b *Bridge) SweepCorrelations(now time.Time) {
	collected := b.correlations.sweep(now)
	if collected > 0 {
		b.metrics.recordCorrelationsExpired(collected)
		b.logger.Debug("Collected unresolved correlations", "count", collected)
	}
	b.metrics.setCorrelationsPending(b.correlations.size())
}

// PendingCorrelations returns the size of the correlation table
func (b *Bridge) PendingCorrelations() int {
	return b.correlations.size()
}

// dispatch evaluates one incoming event against the current binding
// snapshot. Every matching, condition-satisfying binding fires under
// the fan-out policy; a failing binding never prevents the others from
// firing.
func (b *Bridge) dispatch(ctx context.Context, event Event) {
	started := time.Now()

	b.resolveCorrelations(ctx, event)
	b.tracker.RecordEvent(event)

	// Snapshot under the read lock, evaluate outside it
	b.mu.RLock()
	snapshot := make([]*binding, 0, len(b.bindings))
	for _, bound := range b.bindings {
		snapshot = append(snapshot, bound)
	}
	b.mu.RUnlock()

	// Deterministic iteration order gives deterministic precedence
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].rule.Priority != snapshot[j].rule.Priority {
			return snapshot[i].rule.Priority > snapshot[j].rule.Priority
		}
		return snapshot[i].rule.RuleID < snapshot[j].rule.RuleID
	})

	decision := RoutingDecision{
		EventID:   event.ID,
		EventName: event.Name,
		Timestamp: time.Now().UTC(),
	}

	var matched []*binding
	for _, bound := range snapshot {
		decision.EvaluatedRules = append(decision.EvaluatedRules, bound.rule.RuleID)

		if !MatchPattern(bound.rule.SourcePattern, event.Name) {
			continue
		}
		passed, err := b.evaluator.Evaluate(event.Payload, bound.rule.Condition)
		if err != nil {
			b.logger.Warn("Condition evaluation failed", "rule", bound.rule.RuleID, "event", event.ID, "error", err)
			continue
		}
		if !passed {
			continue
		}
		matched = append(matched, bound)
		decision.MatchedRules = append(decision.MatchedRules, bound.rule.RuleID)
	}

	fired := matched
	if b.policy == DispatchPriorityWins && len(matched) > 1 {
		top := matched[0].rule.Priority
		cut := len(matched)
		for i, bound := range matched {
			if bound.rule.Priority < top {
				cut = i
				break
			}
		}
		fired = matched[:cut]
	}

	// Highest-priority match is surfaced as "applied" purely for
	// human-facing explanation; it does not gate the others.
	if len(matched) > 0 {
		decision.AppliedRule = matched[0].rule.RuleID
	}

	var pathParts []string
	for _, bound := range fired {
		if !bound.active.Load() {
			continue // deactivated mid-dispatch
		}
		mapped, err := b.fire(ctx, &bound.rule, event)
		if err != nil {
			b.metrics.recordDispatchError()
			b.trail.Record(AuditRecord{
				Type:    AuditDispatch,
				Actor:   SystemActor,
				RuleID:  bound.rule.RuleID,
				Success: false,
				Detail:  err.Error(),
			})
			b.logger.Warn("Target emission failed", "rule", bound.rule.RuleID, "target", bound.rule.Target, "error", err)
			continue
		}
		decision.MappingApplied = decision.MappingApplied || mapped
		b.metrics.recordFired(bound.rule.Target)
		pathParts = append(pathParts,
			fmt.Sprintf("%s -> [%s] -> %s", event.Name, bound.rule.RuleID, bound.rule.Target))
	}

	if len(pathParts) > 0 {
		decision.Path = strings.Join(pathParts, "; ")
	} else {
		decision.Path = event.Name + " -> (no route)"
	}

	b.metrics.recordDispatch(len(snapshot), len(matched), time.Since(started))
	b.tracker.RecordDecision(decision)
}

// fire applies the rule's transform and emits to its target. Returns
// whether a non-identity mapping was applied.
func (b *Bridge) fire(ctx context.Context, rule *RoutingRule, event Event) (bool, error) {
	mapped := len(rule.Mapping) > 0

	if rule.Foreach != "" {
		items := ForeachItems(rule.Foreach, event.Payload)
		total := len(items)
		for index, item := range items {
			itemCtx := ForeachContext(event.Payload, item, index, total)
			payload := ApplyMapping(rule.Mapping, itemCtx)
			if err := b.emit(ctx, rule, event, payload); err != nil {
				return mapped, err
			}
		}
		return true, nil
	}

	payload := ApplyMapping(rule.Mapping, event.Payload)
	return mapped, b.emit(ctx, rule, event, payload)
}

// emit publishes one outgoing event. Async rules attach a fresh
// correlation token and register the pending response route.
func (b *Bridge) emit(ctx context.Context, rule *RoutingRule, incoming Event, payload map[string]any) error {
	outgoing := NewEvent(rule.Target, payload)
	outgoing.CorrelationID = incoming.CorrelationID

	if rule.Async && rule.ResponseRoute != nil {
		token := uuid.NewString()
		outgoing.CorrelationID = token
		b.correlations.add(token, rule.RuleID, *rule.ResponseRoute)
		b.metrics.setCorrelationsPending(b.correlations.size())
	}

	return b.bus.Publish(ctx, outgoing)
}

// resolveCorrelations re-emits events that answer a pending async
// correlation to the registered response target.
func (b *Bridge) resolveCorrelations(ctx context.Context, event Event) {
	resolved := b.correlations.resolve(event)
	if len(resolved) == 0 {
		return
	}
	b.metrics.setCorrelationsPending(b.correlations.size())

	for _, pending := range resolved {
		response := NewEvent(pending.route.To, event.Payload)
		response.CorrelationID = pending.token
		if err := b.bus.Publish(ctx, response); err != nil {
			b.metrics.recordDispatchError()
			b.logger.Warn("Response re-emission failed",
				"rule", pending.ruleID, "to", pending.route.To, "error", err)
			continue
		}
		b.metrics.recordFired(pending.route.To)
		b.logger.Debug("Correlation resolved", "rule", pending.ruleID, "token", pending.token, "to", pending.route.To)
	}
}
