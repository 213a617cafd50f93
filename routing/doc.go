// Package routing implements a dynamic event routing engine: actors
// install routing rules at runtime that match events by pattern,
// filter them by payload conditions, transform payloads, and dispatch
// to new targets, with every change validated, permission-checked, and
// audited.
//
// # Core Concepts
//
// Events: Messages with a segmented name ("domain:name"), a payload,
// and a correlation id. Event names map onto NATS subjects under the
// "events." prefix, so "sensor:temperature" travels as
// "events.sensor.temperature".
//
// Rules: A RoutingRule binds a source pattern to a target event name.
// Patterns use "*" to match exactly one segment; "sensor:*" matches
// "sensor:temperature" but not "sensor:battery:low". Rules carry a
// priority, an optional condition set evaluated against the payload,
// an optional payload mapping, an optional foreach fan-out path, an
// optional TTL, and a permission scope.
//
// Dispatch: The Bridge taps the full event namespace once and matches
// in-process. By default every matching rule fires (fan-out); the
// engine can instead be configured so only the highest-priority
// matchers fire.
//
// # Basic Usage
//
// Wiring and starting an engine:
//
//	bus := routing.NewNATSBus(client)
//	directory := routing.NewStaticDirectory()
//	directory.Grant("orchestrator", routing.ActorScopeGlobal)
//
//	engine, err := routing.NewEngine(routing.DefaultConfig(), bus,
//	    routing.NewKVEntityStore(ruleKV), routing.NewKVEntityStore(auditKV),
//	    directory, registry)
//	if err != nil {
//	    return err
//	}
//	if err := engine.Initialize(); err != nil {
//	    return err
//	}
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Stop(10 * time.Second)
//
// Installing a rule:
//
//	result, err := engine.AddRule(ctx, "agent-1", routing.Draft{
//	    RuleID:        "low-battery-alert",
//	    SourcePattern: "sensor:battery",
//	    Target:        "alert:low_battery",
//	    Priority:      500,
//	    Condition: expression.ConditionSet{
//	        Conditions: []expression.Condition{
//	            {Field: "level", Operator: expression.OpLessThanEqual, Value: 20},
//	        },
//	    },
//	})
//	if result.Status == routing.StatusRejected {
//	    for _, issue := range result.Issues {
//	        log.Printf("%s: %s", issue.Code, issue.Message)
//	    }
//	}
//
// # Validation
//
// Every mutation is validated before it takes effect. Structural
// checks enforce field presence, pattern syntax, and priority range.
// Conflict checks reject exact duplicates (same pattern and priority)
// and detect routing cycles by treating rules as graph edges: rule A
// feeds rule B when A's target matches B's source pattern. Redundant
// routes (same target, overlapping patterns) pass with a low-severity
// advisory. ValidateRule runs the same checks with no side effects.
//
// # Permissions
//
// Actors hold capability scopes ordered NONE < SELF < CHILDREN <
// ORCHESTRATION < GLOBAL, and each rule declares the scope required to
// touch it. SELF-scoped rules are only visible to their creator;
// CHILDREN extends that to lifecycle descendants resolved through the
// ActorDirectory. The system actor bypasses all checks. Denied
// mutations return ErrPermissionDenied and leave a permission audit
// record.
//
// # Lifetime and Expiry
//
// Rules with a TTL expire automatically. A background sweeper retires
// expired rules through the same code path as explicit deletion, so
// expiry produces an audit record and deactivates the binding
// atomically with the store delete.
//
// # Observability
//
// The audit Trail keeps a bounded in-memory window of every mutation,
// denial, and dispatch failure, and flushes batches to a durable
// store. The decision Tracker records one RoutingDecision per
// dispatched event, answering "why did this event route the way it
// did" (Path) and "what would this rule have done to recent traffic"
// (Impact).
//
// # Async Responses
//
// A rule marked Async declares a ResponseRoute. Dispatch stamps the
// emitted event with a correlation token and parks the route; when a
// later event matches the route's From pattern and carries the token,
// the engine forwards it to the route's To target. Unresolved
// correlations age out of a bounded table.
package routing
