package routing

import (
	"container/list"
	"sync"
	"time"

	"github.com/c360/eventrouter/routing/expression"
)

// DefaultCorrelationField is the payload field checked for the token
// when a response route names no correlation field.
const DefaultCorrelationField = "correlation_id"

type pendingCorrelation struct {
	token     string
	ruleID    string
	route     ResponseRoute
	createdAt time.Time
}

// correlationTable tracks pending async correlations. Entries that
// never resolve are garbage-collected after the expiry window; the
// table is additionally capped with oldest-entry eviction so it can
// never grow without bound.
type correlationTable struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // oldest at the back
	cap     int
	window  time.Duration
}

func newCorrelationTable(capacity int, window time.Duration) *correlationTable {
	return &correlationTable{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		cap:     capacity,
		window:  window,
	}
}

// add registers a pending correlation, evicting the oldest entry when
// the table is full.
func (t *correlationTable) add(token, ruleID string, route ResponseRoute) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if element, exists := t.entries[token]; exists {
		t.order.Remove(element)
	}

	pending := &pendingCorrelation{
		token:     token,
		ruleID:    ruleID,
		route:     route,
		createdAt: time.Now().UTC(),
	}
	t.entries[token] = t.order.PushFront(pending)

	for len(t.entries) > t.cap {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*pendingCorrelation)
		delete(t.entries, entry.token)
		t.order.Remove(oldest)
	}
}

// resolve checks an incoming event against pending correlations.
// Matching entries are removed and returned; each correlation resolves
// at most once.
func (t *correlationTable) resolve(event Event) []*pendingCorrelation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var resolved []*pendingCorrelation
	for element := t.order.Front(); element != nil; {
		next := element.Next()
		pending := element.Value.(*pendingCorrelation)

		if MatchPattern(pending.route.From, event.Name) && t.tokenMatches(pending, event) {
			delete(t.entries, pending.token)
			t.order.Remove(element)
			resolved = append(resolved, pending)
		}
		element = next
	}
	return resolved
}

func (t *correlationTable) tokenMatches(pending *pendingCorrelation, event Event) bool {
	if event.CorrelationID == pending.token {
		return true
	}
	field := pending.route.Correlation
	if field == "" {
		field = DefaultCorrelationField
	}
	value, ok := expression.LookupField(event.Payload, field)
	if !ok {
		return false
	}
	token, ok := value.(string)
	return ok && token == pending.token
}

// sweep drops entries older than the expiry window and returns how
// many were collected. Unresolved correlations are never retried.
func (t *correlationTable) sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.window)
	collected := 0
	for {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		pending := oldest.Value.(*pendingCorrelation)
		if pending.createdAt.After(cutoff) {
			break
		}
		delete(t.entries, pending.token)
		t.order.Remove(oldest)
		collected++
	}
	return collected
}

// size returns the number of pending correlations
func (t *correlationTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
