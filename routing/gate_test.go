package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/eventrouter/errors"
)

func gateFixture() (*Gate, *StaticDirectory) {
	directory := NewStaticDirectory()
	return NewGate(directory), directory
}

func scopedRule(id, createdBy string, scope Scope) *RoutingRule {
	return &RoutingRule{RuleID: id, SourcePattern: "test:*", Target: "out:x", Scope: scope, CreatedBy: createdBy}
}

func TestGate_SystemActorAlwaysPasses(t *testing.T) {
	gate, _ := gateFixture()

	rule := scopedRule("r1", "someone-else", ScopeGlobal)
	assert.NoError(t, gate.Authorize(SystemActor, OpModify, rule))
}

func TestGate_EmptyActorDenied(t *testing.T) {
	gate, _ := gateFixture()

	err := gate.Authorize("", OpAdd, scopedRule("r1", "", ScopeSelf))
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}

func TestGate_SelfScopeOwnRulesOnly(t *testing.T) {
	gate, directory := gateFixture()
	directory.Grant("worker-1", ActorScopeSelf)

	own := scopedRule("r1", "worker-1", ScopeSelf)
	assert.NoError(t, gate.Authorize("worker-1", OpModify, own))

	other := scopedRule("r2", "worker-2", ScopeSelf)
	err := gate.Authorize("worker-1", OpModify, other)
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}

func TestGate_InsufficientLevelDenied(t *testing.T) {
	gate, directory := gateFixture()
	directory.Grant("worker-1", ActorScopeSelf)

	// Self-level actor cannot touch an orchestration-scoped rule, even
	// one it created itself
	rule := scopedRule("r1", "worker-1", ScopeOrchestration)
	err := gate.Authorize("worker-1", OpModify, rule)
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}

func TestGate_ChildrenScope(t *testing.T) {
	gate, directory := gateFixture()
	directory.Grant("parent", ActorScopeChildren)
	directory.SetParent("child", "parent")
	directory.SetParent("grandchild", "child")

	// Rules created by descendants are reachable
	assert.NoError(t, gate.Authorize("parent", OpDelete, scopedRule("r1", "child", ScopeChildren)))
	assert.NoError(t, gate.Authorize("parent", OpDelete, scopedRule("r2", "grandchild", ScopeSelf)))
	assert.NoError(t, gate.Authorize("parent", OpDelete, scopedRule("r3", "parent", ScopeChildren)))

	// Unrelated actors are not
	err := gate.Authorize("parent", OpDelete, scopedRule("r4", "stranger", ScopeSelf))
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}

func TestGate_BroadScopesSkipRelationshipChecks(t *testing.T) {
	gate, directory := gateFixture()
	directory.Grant("orchestrator", ActorScopeOrchestration)
	directory.Grant("admin", ActorScopeGlobal)

	foreign := scopedRule("r1", "stranger", ScopeOrchestration)
	assert.NoError(t, gate.Authorize("orchestrator", OpModify, foreign))

	global := scopedRule("r2", "stranger", ScopeGlobal)
	assert.ErrorIs(t, gate.Authorize("orchestrator", OpModify, global), errors.ErrPermissionDenied)
	assert.NoError(t, gate.Authorize("admin", OpModify, global))
}

func TestGate_UnknownActorHasNoScope(t *testing.T) {
	gate, _ := gateFixture()

	err := gate.Authorize("nobody", OpAdd, scopedRule("r1", "nobody", ScopeSelf))
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}

func TestStaticDirectory_IsAncestorHandlesMissingLinks(t *testing.T) {
	directory := NewStaticDirectory()
	directory.SetParent("b", "a")

	assert.True(t, directory.IsAncestor("a", "b"))
	assert.False(t, directory.IsAncestor("b", "a"))
	assert.False(t, directory.IsAncestor("a", "orphan"))
}

func TestRequiredActorScope(t *testing.T) {
	assert.Equal(t, ActorScopeSelf, RequiredActorScope(ScopeSelf))
	assert.Equal(t, ActorScopeChildren, RequiredActorScope(ScopeChildren))
	assert.Equal(t, ActorScopeOrchestration, RequiredActorScope(ScopeOrchestration))
	assert.Equal(t, ActorScopeGlobal, RequiredActorScope(ScopeGlobal))
	// Unknown scopes demand the broadest capability
	assert.Equal(t, ActorScopeGlobal, RequiredActorScope(Scope("weird")))
}
