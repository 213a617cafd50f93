package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventrouter/errors"
)

func storedRule(id string, priority int) *RoutingRule {
	now := time.Now().UTC()
	return &RoutingRule{
		RuleID:        id,
		SourcePattern: "test:*",
		Target:        "out:" + id,
		Priority:      priority,
		Scope:         ScopeSelf,
		CreatedBy:     "actor-1",
		CreatedAt:     now,
		ModifiedAt:    now,
	}
}

func TestStore_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryEntityStore())

	require.NoError(t, store.Create(ctx, storedRule("r1", 100)))

	got, ok := store.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "out:r1", got.Target)

	removed, err := store.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok = store.Get("r1")
	assert.False(t, ok)

	// Deleting again is a no-op, not an error
	removed, err = store.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_CreateDuplicateFails(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryEntityStore())

	require.NoError(t, store.Create(ctx, storedRule("r1", 100)))
	err := store.Create(ctx, storedRule("r1", 200))
	assert.ErrorIs(t, err, errors.ErrRuleExists)
}

func TestStore_UpdateUnknownFails(t *testing.T) {
	store := NewStore(NewMemoryEntityStore())
	err := store.Update(context.Background(), storedRule("ghost", 1))
	assert.ErrorIs(t, err, errors.ErrRuleNotFound)
}

func TestStore_ListSortsByPriorityDescending(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryEntityStore())

	require.NoError(t, store.Create(ctx, storedRule("low", 10)))
	require.NoError(t, store.Create(ctx, storedRule("high", 900)))
	require.NoError(t, store.Create(ctx, storedRule("mid", 500)))

	rules := store.List(Filter{})
	require.Len(t, rules, 3)
	assert.Equal(t, "high", rules[0].RuleID)
	assert.Equal(t, "mid", rules[1].RuleID)
	assert.Equal(t, "low", rules[2].RuleID)
}

func TestStore_ListFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryEntityStore())

	r1 := storedRule("r1", 100)
	r2 := storedRule("r2", 200)
	r2.CreatedBy = "actor-2"
	require.NoError(t, store.Create(ctx, r1))
	require.NoError(t, store.Create(ctx, r2))

	rules := store.List(Filter{CreatedBy: "actor-2"})
	require.Len(t, rules, 1)
	assert.Equal(t, "r2", rules[0].RuleID)

	minPriority := 150
	rules = store.List(Filter{MinPriority: &minPriority})
	require.Len(t, rules, 1)
	assert.Equal(t, "r2", rules[0].RuleID)
}

func TestStore_LoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	entities := NewMemoryEntityStore()

	first := NewStore(entities)
	require.NoError(t, first.Create(ctx, storedRule("r1", 100)))
	require.NoError(t, first.Create(ctx, storedRule("r2", 200)))

	// A fresh store over the same durable state reconstructs the cache
	second := NewStore(entities)
	loaded, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
	assert.Equal(t, 2, second.Count())

	got, ok := second.Get("r2")
	require.True(t, ok)
	assert.Equal(t, 200, got.Priority)
}

func TestStore_LoadSkipsUndecodableRecords(t *testing.T) {
	ctx := context.Background()
	entities := NewMemoryEntityStore()
	require.NoError(t, entities.Put(ctx, "garbage", []byte("not json")))

	store := NewStore(entities)
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStore_ExpiredBefore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryEntityStore())

	past := time.Now().UTC().Add(-time.Minute)
	expired := storedRule("old", 100)
	expired.ExpiresAt = &past
	require.NoError(t, store.Create(ctx, expired))

	future := time.Now().UTC().Add(time.Hour)
	fresh := storedRule("fresh", 100)
	fresh.ExpiresAt = &future
	require.NoError(t, store.Create(ctx, fresh))

	require.NoError(t, store.Create(ctx, storedRule("permanent", 100)))

	got := store.ExpiredBefore(time.Now().UTC())
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].RuleID)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryEntityStore())
	require.NoError(t, store.Create(ctx, storedRule("r1", 100)))

	got, _ := store.Get("r1")
	got.Priority = 9999

	again, _ := store.Get("r1")
	assert.Equal(t, 100, again.Priority)
}
