package routing

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/eventrouter/component"
	"github.com/c360/eventrouter/errors"
	"github.com/c360/eventrouter/metric"
)

// Config carries the engine tunables
type Config struct {
	SweepInterval        time.Duration
	AuditFlushInterval   time.Duration
	AuditCapacity        int
	DecisionCapacity     int
	EventHistoryCapacity int
	CorrelationCap       int
	CorrelationWindow    time.Duration
	MinPriority          int
	MaxPriority          int
	DispatchPolicy       DispatchPolicy
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		SweepInterval:        DefaultSweepInterval,
		AuditFlushInterval:   30 * time.Second,
		AuditCapacity:        4096,
		DecisionCapacity:     1024,
		EventHistoryCapacity: 1024,
		CorrelationCap:       4096,
		CorrelationWindow:    5 * time.Minute,
		MinPriority:          0,
		MaxPriority:          10000,
		DispatchPolicy:       DispatchFanOut,
	}
}

// Engine is the routing engine facade: the mutation and introspection
// surface over the store, validator, gate, bridge, sweeper, audit
// trail, and decision tracker. All mutation paths serialize on one
// lock; dispatch never takes it.
type Engine struct {
	cfg       Config
	bus       Bus
	store     *Store
	validator *Validator
	gate      *Gate
	trail     *Trail
	tracker   *Tracker
	bridge    *Bridge
	sweeper   *Sweeper
	metrics   *routingMetrics
	logger    *slog.Logger

	mutationMu sync.Mutex

	stateMu   sync.RWMutex
	state     component.State
	startTime time.Time

	eventsSeen atomic.Int64
	errorCount atomic.Int64
	lastError  atomic.Value // string
	lastActive atomic.Value // time.Time

	shutdown chan struct{}
	done     chan struct{}
}

// NewEngine wires an engine from its collaborators. auditStore may be
// nil for a memory-only audit trail; registry may be nil to disable
// metrics.
func NewEngine(cfg Config, bus Bus, entities EntityStore, auditStore EntityStore,
	directory ActorDirectory, registry *metric.MetricsRegistry) (*Engine, error) {
	if bus == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("bus is required"), "Engine", "NewEngine", "validate collaborators")
	}
	if entities == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("entity store is required"), "Engine", "NewEngine", "validate collaborators")
	}
	if directory == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("actor directory is required"), "Engine", "NewEngine", "validate collaborators")
	}

	metrics, err := newRoutingMetrics(registry)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "NewEngine", "register metrics")
	}

	trail := NewTrail(cfg.AuditCapacity, auditStore, metrics)
	tracker := NewTracker(cfg.DecisionCapacity, cfg.EventHistoryCapacity)

	engine := &Engine{
		cfg:       cfg,
		bus:       bus,
		store:     NewStore(entities),
		validator: NewValidator(cfg.MinPriority, cfg.MaxPriority),
		gate:      NewGate(directory),
		trail:     trail,
		tracker:   tracker,
		bridge: NewBridge(bus, tracker, trail, cfg.DispatchPolicy,
			cfg.CorrelationCap, cfg.CorrelationWindow, metrics),
		metrics:  metrics,
		logger:   slog.Default().With("component", "routing-engine"),
		state:    component.StateCreated,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	engine.sweeper = NewSweeper(engine.store, cfg.SweepInterval, engine.retireExpired)
	engine.lastError.Store("")
	engine.lastActive.Store(time.Time{})

	tracker.AddListener(func(RoutingDecision) {
		engine.eventsSeen.Add(1)
		engine.lastActive.Store(time.Now().UTC())
	})

	return engine, nil
}

// Meta implements component.Lifecycle
func (e *Engine) Meta() component.Metadata {
	return component.Metadata{
		Name:        "routing-engine",
		Type:        "engine",
		Description: "Dynamic event routing engine",
		Version:     "1.0.0",
	}
}

// Health implements component.Lifecycle
func (e *Engine) Health() component.HealthStatus {
	e.stateMu.RLock()
	state := e.state
	started := e.startTime
	e.stateMu.RUnlock()

	status := component.HealthStatus{
		Healthy:    state == component.StateStarted,
		LastCheck:  time.Now().UTC(),
		ErrorCount: int(e.errorCount.Load()),
		LastError:  e.lastError.Load().(string),
	}
	if !started.IsZero() {
		status.Uptime = time.Since(started)
	}
	return status
}

// DataFlow implements component.Lifecycle
func (e *Engine) DataFlow() component.FlowMetrics {
	e.stateMu.RLock()
	started := e.startTime
	e.stateMu.RUnlock()

	flow := component.FlowMetrics{
		LastActivity: e.lastActive.Load().(time.Time),
	}
	if !started.IsZero() {
		if uptime := time.Since(started).Seconds(); uptime > 0 {
			flow.EventsPerSecond = float64(e.eventsSeen.Load()) / uptime
		}
	}
	if seen := e.eventsSeen.Load(); seen > 0 {
		flow.ErrorRate = float64(e.errorCount.Load()) / float64(seen)
	}
	return flow
}

// Initialize implements component.Lifecycle. Construction does the
// wiring, so initialization only transitions state.
func (e *Engine) Initialize() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.state != component.StateCreated {
		return errors.ErrAlreadyStarted
	}
	e.state = component.StateInitialized
	return nil
}

// Start loads durable rules, re-activates every unexpired one, taps
// the bus, and launches the sweeper and audit flush loops.
func (e *Engine) Start(ctx context.Context) error {
	e.stateMu.Lock()
	if e.state != component.StateInitialized {
		e.stateMu.Unlock()
		if e.state == component.StateStarted {
			return errors.ErrAlreadyStarted
		}
		return errors.ErrNotStarted
	}
	e.stateMu.Unlock()

	loaded, err := e.store.Load(ctx)
	if err != nil {
		e.fail(err)
		return errors.Wrap(err, "Engine", "Start", "load rule store")
	}

	now := time.Now().UTC()
	activated := 0
	for _, rule := range loaded {
		if rule.Expired(now) {
			continue // the first sweep retires these
		}
		e.bridge.Activate(rule)
		activated++
	}

	if err := e.bridge.Start(ctx); err != nil {
		e.fail(err)
		return errors.Wrap(err, "Engine", "Start", "tap event bus")
	}

	e.sweeper.Start(ctx)
	go e.backgroundLoop(ctx)

	e.stateMu.Lock()
	e.state = component.StateStarted
	e.startTime = time.Now().UTC()
	e.stateMu.Unlock()

	e.logger.Info("Routing engine started",
		"rules", e.store.Count(), "bindings", activated, "policy", string(e.cfg.DispatchPolicy))
	return nil
}

// backgroundLoop drives periodic audit flushes and correlation sweeps
func (e *Engine) backgroundLoop(ctx context.Context) {
	defer close(e.done)

	flush := time.NewTicker(e.cfg.AuditFlushInterval)
	defer flush.Stop()
	correlations := time.NewTicker(e.cfg.CorrelationWindow / 2)
	defer correlations.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdown:
			return
		case <-flush.C:
			if err := e.trail.Flush(ctx); err != nil {
				e.recordError(err)
				e.logger.Warn("Audit flush failed, batch retained", "error", err)
			}
		case <-correlations.C:
			e.bridge.SweepCorrelations(time.Now().UTC())
		}
	}
}

// Stop halts background work and performs a final audit flush
func (e *Engine) Stop(timeout time.Duration) error {
	e.stateMu.Lock()
	if e.state != component.StateStarted {
		e.stateMu.Unlock()
		return errors.ErrNotStarted
	}
	e.state = component.StateStopped
	e.stateMu.Unlock()

	deadline := time.Now().Add(timeout)

	_ = e.sweeper.Stop(timeout / 2)

	close(e.shutdown)
	select {
	case <-e.done:
	case <-time.After(time.Until(deadline)):
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), max(time.Until(deadline), time.Second))
	defer cancel()
	if err := e.trail.Flush(flushCtx); err != nil {
		e.logger.Warn("Final audit flush failed", "error", err)
	}

	e.logger.Info("Routing engine stopped")
	return nil
}

func (e *Engine) fail(err error) {
	e.recordError(err)
	e.stateMu.Lock()
	e.state = component.StateFailed
	e.stateMu.Unlock()
}

func (e *Engine) recordError(err error) {
	e.errorCount.Add(1)
	e.lastError.Store(err.Error())
}

// AddRule validates and installs a new rule. Validation rejections
// return StatusRejected with reasons; permission and persistence
// failures return an error. Exactly one audit record per call.
func (e *Engine) AddRule(ctx context.Context, actor string, draft Draft) (*MutationResult, error) {
	e.mutationMu.Lock()
	defer e.mutationMu.Unlock()

	now := time.Now().UTC()
	rule := draft.materialize(actor, now)

	if err := e.gate.Authorize(actor, OpAdd, rule); err != nil {
		e.auditPermission(actor, draft.RuleID, OpAdd, err)
		return nil, err
	}

	result := e.validator.Validate(draft, e.store.Snapshot())
	if !result.Accepted {
		e.trail.Record(AuditRecord{
			Type: AuditRejected, Actor: actor, RuleID: draft.RuleID,
			Success: false, Detail: issuesDetail(result.Issues),
		})
		return &MutationResult{Status: StatusRejected, RuleID: draft.RuleID, Issues: result.Issues}, nil
	}

	if err := e.store.Create(ctx, rule); err != nil {
		if stderrors.Is(err, errors.ErrRuleExists) {
			issues := []Issue{{Severity: SeverityHigh, Code: IssueExactConflict,
				Message: fmt.Sprintf("rule id %s already exists", rule.RuleID)}}
			e.trail.Record(AuditRecord{
				Type: AuditRejected, Actor: actor, RuleID: rule.RuleID,
				Success: false, Detail: issuesDetail(issues),
			})
			return &MutationResult{Status: StatusRejected, RuleID: rule.RuleID, Issues: issues}, nil
		}
		e.recordError(err)
		return nil, err
	}

	e.bridge.Activate(rule)
	e.trail.Record(AuditRecord{
		Type: AuditCreated, Actor: actor, RuleID: rule.RuleID, Success: true,
		Detail: fmt.Sprintf("%s -> %s priority=%d", rule.SourcePattern, rule.Target, rule.Priority),
	})

	return &MutationResult{Status: StatusCreated, RuleID: rule.RuleID, Issues: result.Issues}, nil
}

// ModifyRule applies updates to an existing rule, re-validating and
// re-bridging it. Unknown ids are an error.
func (e *Engine) ModifyRule(ctx context.Context, actor, ruleID string, update Update) (*MutationResult, error) {
	e.mutationMu.Lock()
	defer e.mutationMu.Unlock()

	current, ok := e.store.Get(ruleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrRuleNotFound, ruleID)
	}

	if err := e.gate.Authorize(actor, OpModify, current); err != nil {
		e.auditPermission(actor, ruleID, OpModify, err)
		return nil, err
	}

	now := time.Now().UTC()
	updated := update.apply(*current, now)

	result := e.validator.Validate(updated.draft(), e.store.Snapshot())
	if !result.Accepted {
		e.trail.Record(AuditRecord{
			Type: AuditRejected, Actor: actor, RuleID: ruleID,
			Success: false, Detail: issuesDetail(result.Issues),
		})
		return &MutationResult{Status: StatusRejected, RuleID: ruleID, Issues: result.Issues}, nil
	}

	if err := e.store.Update(ctx, &updated); err != nil {
		e.recordError(err)
		return nil, err
	}

	e.bridge.Activate(&updated)
	e.trail.Record(AuditRecord{
		Type: AuditModified, Actor: actor, RuleID: ruleID, Success: true,
		Detail: fmt.Sprintf("%s -> %s priority=%d", updated.SourcePattern, updated.Target, updated.Priority),
	})

	return &MutationResult{Status: StatusUpdated, RuleID: ruleID, Issues: result.Issues}, nil
}

// DeleteRule retires a rule. Deleting an unknown id reports not_found
// without error.
func (e *Engine) DeleteRule(ctx context.Context, actor, ruleID string) (*MutationResult, error) {
	e.mutationMu.Lock()
	defer e.mutationMu.Unlock()

	current, ok := e.store.Get(ruleID)
	if !ok {
		return &MutationResult{Status: StatusNotFound, RuleID: ruleID}, nil
	}

	if err := e.gate.Authorize(actor, OpDelete, current); err != nil {
		e.auditPermission(actor, ruleID, OpDelete, err)
		return nil, err
	}

	removed, err := e.store.Delete(ctx, ruleID)
	if err != nil {
		e.recordError(err)
		return nil, err
	}
	if !removed {
		return &MutationResult{Status: StatusNotFound, RuleID: ruleID}, nil
	}

	e.bridge.Deactivate(ruleID)
	e.trail.Record(AuditRecord{Type: AuditDeleted, Actor: actor, RuleID: ruleID, Success: true})

	return &MutationResult{Status: StatusDeleted, RuleID: ruleID}, nil
}

// retireExpired is the sweeper's retirement path: the same sequence as
// explicit deletion, attributed to the system actor with the rule's
// computed lifetime.
func (e *Engine) retireExpired(ctx context.Context, rule *RoutingRule) (bool, error) {
	e.mutationMu.Lock()
	defer e.mutationMu.Unlock()

	current, ok := e.store.Get(rule.RuleID)
	if !ok || !current.Expired(time.Now().UTC()) {
		return false, nil // already gone, or modified with a fresh TTL
	}

	removed, err := e.store.Delete(ctx, rule.RuleID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	e.bridge.Deactivate(rule.RuleID)
	e.metrics.recordExpired(1)
	e.trail.Record(AuditRecord{
		Type: AuditExpired, Actor: SystemActor, RuleID: rule.RuleID, Success: true,
		Detail: fmt.Sprintf("ttl=%ds lifetime=%s", rule.TTL, current.Lifetime(time.Now().UTC()).Round(time.Millisecond)),
	})
	return true, nil
}

// QueryRules returns rules the actor may see, sorted by priority
// descending. Rules outside the actor's scope are filtered, not
// errors.
func (e *Engine) QueryRules(_ context.Context, actor string, filter Filter) ([]RoutingRule, error) {
	rules := e.store.List(filter)
	visible := make([]RoutingRule, 0, len(rules))
	for _, rule := range rules {
		if err := e.gate.Authorize(actor, OpQuery, rule); err != nil {
			continue
		}
		visible = append(visible, *rule)
	}
	return visible, nil
}

// ValidateRule dry-runs validation with no persistence or audit side
// effects.
func (e *Engine) ValidateRule(_ context.Context, draft Draft) ValidationResult {
	return e.validator.Validate(draft, e.store.Snapshot())
}

// AuditLog queries the audit trail
func (e *Engine) AuditLog(filter AuditFilter, limit int) []AuditRecord {
	return e.trail.Query(filter, limit)
}

// Decisions returns recent routing decisions
func (e *Engine) Decisions(eventPattern string, limit int) []RoutingDecision {
	return e.tracker.Decisions(eventPattern, limit)
}

// Path returns the routing path recorded for an event
func (e *Engine) Path(eventID string) (string, error) {
	return e.tracker.Path(eventID)
}

// Impact estimates how many recent events a rule would affect
func (e *Engine) Impact(ruleID string, patterns []string, window time.Duration) (*ImpactSummary, error) {
	rule, ok := e.store.Get(ruleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrRuleNotFound, ruleID)
	}
	return e.tracker.Impact(rule, patterns, window), nil
}

// ImpactOf estimates the effect of a hypothetical draft without
// requiring a stored rule.
func (e *Engine) ImpactOf(draft Draft, patterns []string, window time.Duration) *ImpactSummary {
	rule := draft.materialize(SystemActor, time.Now().UTC())
	return e.tracker.Impact(rule, patterns, window)
}

// Tracker exposes the decision tracker for streaming consumers
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Store exposes the rule store for read-side consumers
func (e *Engine) Store() *Store {
	return e.store
}

// Sweep runs one immediate expiry pass
func (e *Engine) Sweep(ctx context.Context) int {
	return e.sweeper.Sweep(ctx)
}

// FlushAudit forces an immediate audit flush
func (e *Engine) FlushAudit(ctx context.Context) error {
	return e.trail.Flush(ctx)
}

func (e *Engine) auditPermission(actor, ruleID string, op Operation, denied error) {
	detail := string(op)
	if denied != nil {
		detail = denied.Error()
	}
	e.trail.Record(AuditRecord{
		Type: AuditPermission, Actor: actor, RuleID: ruleID,
		Success: denied == nil, Detail: detail,
	})
}

func issuesDetail(issues []Issue) string {
	if len(issues) == 0 {
		return ""
	}
	detail := issues[0].Message
	if len(issues) > 1 {
		detail = fmt.Sprintf("%s (+%d more)", detail, len(issues)-1)
	}
	return detail
}
