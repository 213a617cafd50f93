package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventrouter/errors"
	"github.com/c360/eventrouter/routing/expression"
)

func TestTracker_DecisionsFilterAndOrder(t *testing.T) {
	tracker := NewTracker(16, 16)

	tracker.RecordDecision(RoutingDecision{EventID: "e1", EventName: "test:a"})
	tracker.RecordDecision(RoutingDecision{EventID: "e2", EventName: "test:b"})
	tracker.RecordDecision(RoutingDecision{EventID: "e3", EventName: "other:c"})

	all := tracker.Decisions("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].EventID) // newest first

	matched := tracker.Decisions("test:*", 0)
	require.Len(t, matched, 2)
	assert.Equal(t, "e2", matched[0].EventID)

	limited := tracker.Decisions("", 1)
	assert.Len(t, limited, 1)
}

func TestTracker_Path(t *testing.T) {
	tracker := NewTracker(16, 16)
	tracker.RecordDecision(RoutingDecision{
		EventID: "e1", EventName: "test:a", Path: "test:a -> [r1] -> out:x",
	})

	path, err := tracker.Path("e1")
	require.NoError(t, err)
	assert.Equal(t, "test:a -> [r1] -> out:x", path)

	_, err = tracker.Path("unknown")
	assert.ErrorIs(t, err, errors.ErrEventNotFound)
}

func TestTracker_Impact(t *testing.T) {
	tracker := NewTracker(16, 64)

	now := time.Now().UTC()
	tracker.RecordEvent(Event{ID: "e1", Name: "test:a", Timestamp: now,
		Payload: map[string]any{"level": float64(10)}})
	tracker.RecordEvent(Event{ID: "e2", Name: "test:b", Timestamp: now,
		Payload: map[string]any{"level": float64(50)}})
	tracker.RecordEvent(Event{ID: "e3", Name: "other:c", Timestamp: now,
		Payload: map[string]any{"level": float64(5)}})

	rule := &RoutingRule{
		RuleID:        "hypothetical",
		SourcePattern: "test:*",
		Target:        "out:x",
		Condition: expression.ConditionSet{Conditions: []expression.Condition{
			{Field: "level", Operator: expression.OpLessThan, Value: float64(20)},
		}},
	}

	summary := tracker.Impact(rule, nil, 0)
	assert.Equal(t, 3, summary.EventsExamined)
	assert.Equal(t, 1, summary.EventsMatched)
	assert.Equal(t, 1, summary.MatchedByName["test:a"])
}

func TestTracker_ImpactWindowAndPatterns(t *testing.T) {
	tracker := NewTracker(16, 64)

	old := time.Now().UTC().Add(-time.Hour)
	tracker.RecordEvent(Event{ID: "e1", Name: "test:a", Timestamp: old, Payload: map[string]any{}})
	tracker.RecordEvent(Event{ID: "e2", Name: "test:a", Timestamp: time.Now().UTC(), Payload: map[string]any{}})

	rule := &RoutingRule{RuleID: "r", SourcePattern: "test:*", Target: "out:x"}

	windowed := tracker.Impact(rule, nil, time.Minute)
	assert.Equal(t, 1, windowed.EventsExamined)
	assert.Equal(t, 1, windowed.EventsMatched)

	filtered := tracker.Impact(rule, []string{"other:*"}, 0)
	assert.Equal(t, 0, filtered.EventsExamined)
}

func TestTracker_ListenersObserveDecisions(t *testing.T) {
	tracker := NewTracker(16, 16)

	var seen []string
	tracker.AddListener(func(decision RoutingDecision) {
		seen = append(seen, decision.EventID)
	})

	tracker.RecordDecision(RoutingDecision{EventID: "e1", EventName: "test:a"})
	tracker.RecordDecision(RoutingDecision{EventID: "e2", EventName: "test:b"})

	assert.Equal(t, []string{"e1", "e2"}, seen)
}
