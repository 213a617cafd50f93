// Package natsclient provides a NATS client with circuit breaker
// protection, automatic reconnection, and JetStream/KV support.
//
// The client wraps the standard NATS Go client with a circuit breaker
// that fails fast after a threshold of consecutive failures (default
// 5), exponential backoff on recovery attempts, and context
// propagation on every I/O operation.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222")
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Subscribe(ctx, "events.>", func(msgCtx context.Context, data []byte) {
//	    // handle message, msgCtx carries a 30s per-message timeout
//	})
//
// # Key-Value Store
//
// KVStore wraps a JetStream KV bucket with consistent error mapping
// and automatic CAS retry for read-modify-write updates:
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "router_rules",
//	})
//	store := natsclient.NewKVStore(bucket, "router_rules", nil)
//
//	err = store.UpdateWithRetry(ctx, "some.key", func(current []byte) ([]byte, error) {
//	    // may run more than once on revision conflict
//	    return next, nil
//	})
//
// # Testing
//
// Integration tests use a real NATS server via testcontainers rather
// than mocks:
//
//	tc := natsclient.NewTestClient(t, natsclient.WithKVBuckets("router_rules"))
//	client := tc.Client
//
// The Client is safe for concurrent use. Close drains subscriptions
// and is a no-op when called twice.
package natsclient
