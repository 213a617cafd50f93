package routing

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/eventrouter/errors"
)

// Store is the durable, cached rule registry. The in-memory cache is
// the fast read path; the entity store is the source of truth on
// restart. Every write goes through the durable record first, so a
// persistence failure leaves the cache unchanged.
type Store struct {
	entities EntityStore
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]RoutingRule
}

// NewStore creates a store over an entity persistence boundary
func NewStore(entities EntityStore) *Store {
	return &Store{
		entities: entities,
		logger:   slog.Default().With("component", "rule-store"),
		cache:    make(map[string]RoutingRule),
	}
}

// Load reconstructs the cache from durable state, dropping records
// that fail to decode. Returns the loaded rules, expired ones
// included; the caller decides what to re-activate.
func (s *Store) Load(ctx context.Context) ([]*RoutingRule, error) {
	keys, err := s.entities.List(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "Load", "list durable rules")
	}

	loaded := make([]*RoutingRule, 0, len(keys))
	cache := make(map[string]RoutingRule, len(keys))

	for _, key := range keys {
		data, err := s.entities.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, errors.ErrKeyNotFound) {
				continue // deleted between list and get
			}
			return nil, errors.WrapTransient(err, "Store", "Load", "read rule "+key)
		}

		var rule RoutingRule
		if err := json.Unmarshal(data, &rule); err != nil {
			s.logger.Warn("Dropping undecodable rule record", "key", key, "error", err)
			continue
		}
		cache[rule.RuleID] = rule
		copied := rule
		loaded = append(loaded, &copied)
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()

	s.logger.Info("Rule store loaded", "rules", len(cache))
	return loaded, nil
}

// Create persists a new rule. Fails with ErrRuleExists when the id is
// already taken.
func (s *Store) Create(ctx context.Context, rule *RoutingRule) error {
	s.mu.RLock()
	_, exists := s.cache[rule.RuleID]
	s.mu.RUnlock()
	if exists {
		return errors.ErrRuleExists
	}

	if err := s.persist(ctx, rule); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[rule.RuleID] = *rule
	s.mu.Unlock()
	return nil
}

// Update persists a changed rule body. Fails with ErrRuleNotFound for
// unknown ids.
func (s *Store) Update(ctx context.Context, rule *RoutingRule) error {
	s.mu.RLock()
	_, exists := s.cache[rule.RuleID]
	s.mu.RUnlock()
	if !exists {
		return errors.ErrRuleNotFound
	}

	if err := s.persist(ctx, rule); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[rule.RuleID] = *rule
	s.mu.Unlock()
	return nil
}

func (s *Store) persist(ctx context.Context, rule *RoutingRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "persist", "marshal rule "+rule.RuleID)
	}
	if err := s.entities.Put(ctx, rule.RuleID, data); err != nil {
		return errors.WrapTransient(err, "Store", "persist", "write rule "+rule.RuleID)
	}
	return nil
}

// Delete removes a rule from durable state and cache. Returns false
// without error when the rule is already gone, keeping explicit
// deletes and expiry sweeps idempotent against each other.
func (s *Store) Delete(ctx context.Context, ruleID string) (bool, error) {
	s.mu.RLock()
	_, exists := s.cache[ruleID]
	s.mu.RUnlock()
	if !exists {
		return false, nil
	}

	if err := s.entities.Delete(ctx, ruleID); err != nil {
		return false, errors.WrapTransient(err, "Store", "Delete", "delete rule "+ruleID)
	}

	s.mu.Lock()
	_, existed := s.cache[ruleID]
	delete(s.cache, ruleID)
	s.mu.Unlock()
	return existed, nil
}

// Get returns a copy of a rule by id
func (s *Store) Get(ruleID string) (*RoutingRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.cache[ruleID]
	if !ok {
		return nil, false
	}
	copied := rule
	return &copied, true
}

// List returns rules passing the filter, sorted by priority descending
// with rule id as the deterministic tie-break.
func (s *Store) List(filter Filter) []*RoutingRule {
	s.mu.RLock()
	rules := make([]*RoutingRule, 0, len(s.cache))
	for _, rule := range s.cache {
		copied := rule
		if filter.Matches(&copied) {
			rules = append(rules, &copied)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].RuleID < rules[j].RuleID
	})
	return rules
}

// Snapshot returns copies of all rules, unsorted
func (s *Store) Snapshot() []*RoutingRule {
	return s.List(Filter{})
}

// ExpiredBefore returns rules whose expiry is at or before now
func (s *Store) ExpiredBefore(now time.Time) []*RoutingRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*RoutingRule
	for _, rule := range s.cache {
		if rule.Expired(now) {
			copied := rule
			expired = append(expired, &copied)
		}
	}
	return expired
}

// Count returns the number of cached rules
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
