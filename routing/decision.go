package routing

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/eventrouter/errors"
	"github.com/c360/eventrouter/pkg/buffer"
	"github.com/c360/eventrouter/routing/expression"
)

// RoutingDecision records, for one dispatched event, which bindings
// were evaluated, which matched, which won by priority for display,
// and the resulting routing path. Transient: ring-buffered, not
// persisted.
type RoutingDecision struct {
	EventID        string    `json:"event_id"`
	EventName      string    `json:"event_name"`
	EvaluatedRules []string  `json:"evaluated_rule_ids"`
	MatchedRules   []string  `json:"matched_rule_ids"`
	AppliedRule    string    `json:"applied_rule_id,omitempty"` // highest priority among matched, for explanation only
	MappingApplied bool      `json:"mapping_applied"`
	Path           string    `json:"path"`
	Timestamp      time.Time `json:"timestamp"`
}

// ImpactSummary estimates how a rule change would affect recent
// traffic, computed by re-evaluating buffered events against the
// hypothetical rule without mutating live state.
type ImpactSummary struct {
	RuleID         string         `json:"rule_id"`
	Window         time.Duration  `json:"window"`
	EventsExamined int            `json:"events_examined"`
	EventsMatched  int            `json:"events_matched"`
	MatchedByName  map[string]int `json:"matched_by_name,omitempty"`
}

// DecisionListener observes decisions as they are recorded. Listeners
// must not block; slow consumers drop.
type DecisionListener func(decision RoutingDecision)

// Tracker retains recent routing decisions and recent events for path
// and impact queries.
type Tracker struct {
	decisions *buffer.Ring[RoutingDecision]
	events    *buffer.Ring[Event]
	evaluator *expression.Evaluator
	logger    *slog.Logger

	listeners []DecisionListener
}

// NewTracker creates a tracker with bounded decision and event history
func NewTracker(decisionCapacity, eventCapacity int) *Tracker {
	return &Tracker{
		decisions: buffer.NewRing[RoutingDecision](decisionCapacity),
		events:    buffer.NewRing[Event](eventCapacity),
		evaluator: expression.NewEvaluator(),
		logger:    slog.Default().With("component", "decision-tracker"),
	}
}

// AddListener registers a decision observer. Not safe to call after
// dispatch has started.
func (t *Tracker) AddListener(listener DecisionListener) {
	t.listeners = append(t.listeners, listener)
}

// RecordEvent retains an incoming event for impact re-evaluation
func (t *Tracker) RecordEvent(event Event) {
	t.events.Append(event)
}

// RecordDecision retains a dispatch decision
func (t *Tracker) RecordDecision(decision RoutingDecision) {
	if decision.Timestamp.IsZero() {
		decision.Timestamp = time.Now().UTC()
	}
	t.decisions.Append(decision)
	for _, listener := range t.listeners {
		listener(decision)
	}
}

// Decisions returns recent decisions, newest first. An empty pattern
// matches all events; limit <= 0 returns everything retained.
func (t *Tracker) Decisions(eventPattern string, limit int) []RoutingDecision {
	snapshot := t.decisions.Snapshot()

	var results []RoutingDecision
	for i := len(snapshot) - 1; i >= 0; i-- {
		if eventPattern != "" && !MatchPattern(eventPattern, snapshot[i].EventName) {
			continue
		}
		results = append(results, snapshot[i])
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results
}

// Path returns the human-readable routing path for a dispatched event
func (t *Tracker) Path(eventID string) (string, error) {
	snapshot := t.decisions.Snapshot()
	for i := len(snapshot) - 1; i >= 0; i-- {
		if snapshot[i].EventID == eventID {
			return snapshot[i].Path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", errors.ErrEventNotFound, eventID)
}

// Impact re-evaluates retained events against a hypothetical rule and
// counts how many would have been routed by it. patterns, when
// non-empty, restricts the examined events; window, when positive,
// restricts them by age.
func (t *Tracker) Impact(rule *RoutingRule, patterns []string, window time.Duration) *ImpactSummary {
	summary := &ImpactSummary{
		RuleID:        rule.RuleID,
		Window:        window,
		MatchedByName: make(map[string]int),
	}

	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().UTC().Add(-window)
	}

	for _, event := range t.events.Snapshot() {
		if !cutoff.IsZero() && event.Timestamp.Before(cutoff) {
			continue
		}
		if len(patterns) > 0 && !anyPatternMatches(patterns, event.Name) {
			continue
		}
		summary.EventsExamined++

		if !MatchPattern(rule.SourcePattern, event.Name) {
			continue
		}
		passed, err := t.evaluator.Evaluate(event.Payload, rule.Condition)
		if err != nil {
			t.logger.Debug("Impact condition evaluation failed", "rule", rule.RuleID, "event", event.ID, "error", err)
			continue
		}
		if passed {
			summary.EventsMatched++
			summary.MatchedByName[event.Name]++
		}
	}

	if len(summary.MatchedByName) == 0 {
		summary.MatchedByName = nil
	}
	return summary
}

func anyPatternMatches(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}
