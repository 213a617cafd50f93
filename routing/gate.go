package routing

import (
	"fmt"
	"sync"

	"github.com/c360/eventrouter/errors"
)

// SystemActor is the distinguished identity that always passes
// authorization.
const SystemActor = "system"

// Operation names the mutation or query being authorized
type Operation string

// Authorized operations
const (
	OpAdd    Operation = "add_rule"
	OpModify Operation = "modify_rule"
	OpDelete Operation = "delete_rule"
	OpQuery  Operation = "query_rules"
)

// ActorDirectory is the identity/capability boundary: it answers what
// scope an actor holds and whether one actor is a lifecycle ancestor
// of another.
type ActorDirectory interface {
	ActorScope(actorID string) ActorScope
	IsAncestor(parentID, childID string) bool
}

// Gate authorizes rule operations against an actor's granted scope
type Gate struct {
	directory ActorDirectory
}

// NewGate creates a permission gate over an actor directory
func NewGate(directory ActorDirectory) *Gate {
	return &Gate{directory: directory}
}

// Authorize decides whether actor may perform op on the rule. Returns
// nil to allow, or an ErrPermissionDenied-wrapped reason to deny. The
// system actor always passes.
//
// The actor's capability level must cover the rule's scope; on top of
// that, a SELF-level actor touches only rules it created itself, and a
// CHILDREN-level actor additionally reaches rules created by its
// lifecycle descendants.
func (g *Gate) Authorize(actor string, op Operation, rule *RoutingRule) error {
	if actor == SystemActor {
		return nil
	}
	if actor == "" {
		return fmt.Errorf("%w: actor identity required for %s", errors.ErrPermissionDenied, op)
	}

	granted := g.directory.ActorScope(actor)
	required := RequiredActorScope(rule.Scope)

	if granted < required {
		return fmt.Errorf("%w: actor %s holds %s scope, rule %s requires %s",
			errors.ErrPermissionDenied, actor, granted, rule.RuleID, required)
	}

	switch granted {
	case ActorScopeSelf:
		if rule.CreatedBy != actor {
			return fmt.Errorf("%w: actor %s with self scope cannot touch rule %s created by %s",
				errors.ErrPermissionDenied, actor, rule.RuleID, rule.CreatedBy)
		}
	case ActorScopeChildren:
		if rule.CreatedBy != actor && !g.directory.IsAncestor(actor, rule.CreatedBy) {
			return fmt.Errorf("%w: actor %s with children scope is not an ancestor of %s",
				errors.ErrPermissionDenied, actor, rule.CreatedBy)
		}
	}

	return nil
}

// StaticDirectory is an in-memory ActorDirectory with explicit scope
// grants and parent links. Unknown actors hold no scope.
type StaticDirectory struct {
	mu      sync.RWMutex
	scopes  map[string]ActorScope
	parents map[string]string // child -> parent
}

// NewStaticDirectory creates an empty directory
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		scopes:  make(map[string]ActorScope),
		parents: make(map[string]string),
	}
}

// Grant assigns a capability scope to an actor
func (d *StaticDirectory) Grant(actorID string, scope ActorScope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scopes[actorID] = scope
}

// SetParent records a lifecycle parent link
func (d *StaticDirectory) SetParent(childID, parentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parents[childID] = parentID
}

// ActorScope returns the actor's granted scope, ActorScopeNone when
// unknown.
func (d *StaticDirectory) ActorScope(actorID string) ActorScope {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scopes[actorID]
}

// IsAncestor walks parent links from child looking for parentID
func (d *StaticDirectory) IsAncestor(parentID, childID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	current := childID
	for range len(d.parents) + 1 {
		parent, ok := d.parents[current]
		if !ok {
			return false
		}
		if parent == parentID {
			return true
		}
		current = parent
	}
	return false
}
