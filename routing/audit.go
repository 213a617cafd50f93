package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/eventrouter/errors"
	"github.com/c360/eventrouter/pkg/buffer"
)

// Audit record types
const (
	AuditCreated    = "created"
	AuditModified   = "modified"
	AuditDeleted    = "deleted"
	AuditExpired    = "expired"
	AuditRejected   = "rejected"
	AuditPermission = "permission"
	AuditDispatch   = "dispatch_error"
)

// AuditRecord is an append-only record of one lifecycle action,
// permission decision, expiry, or validation outcome. Never mutated
// after creation.
type AuditRecord struct {
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	RuleID    string    `json:"rule_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
}

// AuditFilter narrows audit queries. Zero values match everything.
type AuditFilter struct {
	Type    string    `json:"type,omitempty"`
	Actor   string    `json:"actor,omitempty"`
	RuleID  string    `json:"rule_id,omitempty"`
	Since   time.Time `json:"since,omitempty"`
	Until   time.Time `json:"until,omitempty"`
	Success *bool     `json:"success,omitempty"`
}

func (f AuditFilter) matches(record AuditRecord) bool {
	if f.Type != "" && record.Type != f.Type {
		return false
	}
	if f.Actor != "" && record.Actor != f.Actor {
		return false
	}
	if f.RuleID != "" && record.RuleID != f.RuleID {
		return false
	}
	if !f.Since.IsZero() && record.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && record.Timestamp.After(f.Until) {
		return false
	}
	if f.Success != nil && record.Success != *f.Success {
		return false
	}
	return true
}

// DefaultAuditQueryLimit caps query results when the caller passes no
// limit; MaxAuditQueryLimit bounds what a caller may request.
const (
	DefaultAuditQueryLimit = 100
	MaxAuditQueryLimit     = 1000
)

// Trail is the append-only audit buffer with periodic durable flush.
// In-memory history is bounded by the ring capacity; a restart loses
// at most one flush interval of durable history.
type Trail struct {
	ring    *buffer.Ring[AuditRecord]
	store   EntityStore // nil keeps the trail memory-only
	logger  *slog.Logger
	metrics *routingMetrics

	mu      sync.Mutex
	pending []AuditRecord
}

// NewTrail creates an audit trail. store may be nil for memory-only
// operation (embedded and test use).
func NewTrail(capacity int, store EntityStore, metrics *routingMetrics) *Trail {
	return &Trail{
		ring:    buffer.NewRing[AuditRecord](capacity),
		store:   store,
		logger:  slog.Default().With("component", "audit-trail"),
		metrics: metrics,
	}
}

// Record appends one audit record
func (t *Trail) Record(record AuditRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	t.ring.Append(record)

	if t.store != nil {
		t.mu.Lock()
		t.pending = append(t.pending, record)
		t.mu.Unlock()
	}

	t.metrics.recordAudit(record.Type)
}

// Query returns records matching the filter, newest first, capped at
// limit (DefaultAuditQueryLimit when zero, MaxAuditQueryLimit at most).
func (t *Trail) Query(filter AuditFilter, limit int) []AuditRecord {
	if limit <= 0 {
		limit = DefaultAuditQueryLimit
	}
	if limit > MaxAuditQueryLimit {
		limit = MaxAuditQueryLimit
	}

	snapshot := t.ring.Snapshot()
	results := make([]AuditRecord, 0, limit)
	for i := len(snapshot) - 1; i >= 0 && len(results) < limit; i-- {
		if filter.matches(snapshot[i]) {
			results = append(results, snapshot[i])
		}
	}
	return results
}

// Flush writes pending records to durable storage as one batch keyed
// by flush time. No-op without a store or pending records. On failure
// the batch stays pending for the next interval.
func (t *Trail) Flush(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return nil
	}
	batch := t.pending
	t.pending = nil
	t.mu.Unlock()

	data, err := json.Marshal(batch)
	if err != nil {
		// Undecodable batches cannot be retried; drop with a log
		t.logger.Error("Dropping unserializable audit batch", "records", len(batch), "error", err)
		return errors.WrapInvalid(err, "Trail", "Flush", "marshal audit batch")
	}

	key := fmt.Sprintf("batch.%d", time.Now().UTC().UnixNano())
	if err := t.store.Put(ctx, key, data); err != nil {
		t.mu.Lock()
		t.pending = append(batch, t.pending...)
		t.mu.Unlock()
		return errors.WrapTransient(err, "Trail", "Flush", "persist audit batch")
	}

	t.metrics.recordAuditFlush(len(batch))
	t.logger.Debug("Flushed audit batch", "records", len(batch), "key", key)
	return nil
}

// PendingCount returns the number of records awaiting flush
func (t *Trail) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
