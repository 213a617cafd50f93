//go:build integration

package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventrouter/natsclient"
)

func startIntegrationEngine(t *testing.T, tc *natsclient.TestClient) *Engine {
	t.Helper()
	ctx := context.Background()

	rules, err := tc.Client.GetKeyValueBucket(ctx, "router_rules")
	require.NoError(t, err)
	audit, err := tc.Client.GetKeyValueBucket(ctx, "router_audit")
	require.NoError(t, err)

	directory := NewStaticDirectory()
	directory.Grant("admin", ActorScopeGlobal)

	cfg := DefaultConfig()
	engine, err := NewEngine(cfg, NewNATSBus(tc.Client),
		NewKVEntityStore(natsclient.NewKVStore(rules, "router_rules", nil)),
		NewKVEntityStore(natsclient.NewKVStore(audit, "router_audit", nil)),
		directory, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())
	require.NoError(t, engine.Start(ctx))
	return engine
}

func TestIntegration_DispatchOverNATS(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithKVBuckets("router_rules", "router_audit"))
	ctx := context.Background()

	engine := startIntegrationEngine(t, tc)
	defer func() { _ = engine.Stop(5 * time.Second) }()

	result, err := engine.AddRule(ctx, "admin", Draft{
		RuleID:        "temp-alert",
		SourcePattern: "sensor:*",
		Target:        "alert:high_temp",
		Priority:      100,
	})
	require.NoError(t, err)
	require.Equal(t, StatusCreated, result.Status)

	var mu sync.Mutex
	var received []Event
	require.NoError(t, tc.Client.Subscribe(ctx, "events.alert.>", func(_ context.Context, data []byte) {
		event, err := UnmarshalEvent(data)
		if err != nil {
			return
		}
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	}))

	bus := NewNATSBus(tc.Client)
	source := NewEvent("sensor:temp", map[string]any{"value": 99.0})
	require.NoError(t, bus.Publish(ctx, source))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "alert:high_temp", received[0].Name)
	assert.Equal(t, 99.0, received[0].Payload["value"])
}

func TestIntegration_RulesSurviveRestart(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithKVBuckets("router_rules", "router_audit"))
	ctx := context.Background()

	first := startIntegrationEngine(t, tc)
	_, err := first.AddRule(ctx, "admin", Draft{
		RuleID: "durable", SourcePattern: "task:*", Target: "archive:tasks", Priority: 10,
	})
	require.NoError(t, err)
	require.NoError(t, first.Stop(5*time.Second))

	second := startIntegrationEngine(t, tc)
	defer func() { _ = second.Stop(5 * time.Second) }()

	rule, ok := second.Store().Get("durable")
	require.True(t, ok)
	assert.Equal(t, "task:*", rule.SourcePattern)

	rules, err := second.QueryRules(ctx, SystemActor, Filter{})
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestIntegration_AuditBatchPersisted(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithKVBuckets("router_rules", "router_audit"))
	ctx := context.Background()

	engine := startIntegrationEngine(t, tc)
	defer func() { _ = engine.Stop(5 * time.Second) }()

	_, err := engine.AddRule(ctx, "admin", Draft{
		RuleID: "audited", SourcePattern: "task:*", Target: "archive:tasks", Priority: 10,
	})
	require.NoError(t, err)
	require.NoError(t, engine.FlushAudit(ctx))

	bucket, err := tc.Client.GetKeyValueBucket(ctx, "router_audit")
	require.NoError(t, err)
	store := natsclient.NewKVStore(bucket, "router_audit", nil)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	assert.Contains(t, keys[0], "batch.")
}
