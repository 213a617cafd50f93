package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMapping_IdentityPassthrough(t *testing.T) {
	payload := map[string]any{"x": 1, "y": "two"}

	assert.Equal(t, payload, ApplyMapping(nil, payload))
	assert.Equal(t, payload, ApplyMapping(map[string]any{}, payload))
}

func TestApplyMapping_Substitution(t *testing.T) {
	payload := map[string]any{
		"robot": map[string]any{"id": "r-7", "battery": 42.5},
		"zone":  "dock",
	}

	mapping := map[string]any{
		"target_id": "{robot.id}",
		"level":     "{robot.battery}",
		"summary":   "robot {robot.id} at {zone}",
		"constant":  7,
		"nested":    map[string]any{"where": "{zone}"},
		"list":      []any{"{robot.id}", "fixed"},
	}

	out := ApplyMapping(mapping, payload)

	// Whole-string placeholders preserve the referenced type
	assert.Equal(t, "r-7", out["target_id"])
	assert.Equal(t, 42.5, out["level"])

	assert.Equal(t, "robot r-7 at dock", out["summary"])
	assert.Equal(t, 7, out["constant"])
	assert.Equal(t, map[string]any{"where": "dock"}, out["nested"])
	assert.Equal(t, []any{"r-7", "fixed"}, out["list"])
}

func TestApplyMapping_UnresolvableReferences(t *testing.T) {
	payload := map[string]any{"a": 1}

	out := ApplyMapping(map[string]any{
		"whole":  "{missing}",
		"interp": "value: {missing}!",
	}, payload)

	assert.Nil(t, out["whole"])
	assert.Equal(t, "value: !", out["interp"])
}

func TestForeachItems(t *testing.T) {
	payload := map[string]any{
		"batch": map[string]any{"items": []any{"a", "b", "c"}},
		"count": 3,
	}

	items := ForeachItems("batch.items", payload)
	require.Len(t, items, 3)

	assert.Nil(t, ForeachItems("missing", payload))
	assert.Nil(t, ForeachItems("count", payload)) // not a collection
}

func TestForeachContext(t *testing.T) {
	payload := map[string]any{"source": "s"}

	ctx := ForeachContext(payload, "item-b", 1, 3)
	assert.Equal(t, "s", ctx["source"])
	assert.Equal(t, "item-b", ctx["item"])
	assert.Equal(t, 1, ctx["index"])
	assert.Equal(t, 3, ctx["total"])

	// Original payload untouched
	_, has := payload["item"]
	assert.False(t, has)
}
