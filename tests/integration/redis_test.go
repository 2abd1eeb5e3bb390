package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/registry"
)

func TestDistributedRegistry_OwnershipAcrossNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Arrange: two nodes sharing one Redis
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	ctx := context.Background()

	nodeA := registry.NewDistributed(registry.NewLocal(), env.Redis, "node-a", 30*time.Second, env.Logger)
	nodeB := registry.NewDistributed(registry.NewLocal(), env.Redis, "node-b", 30*time.Second, env.Logger)

	// Act: the charger connects to node A
	nodeA.Attach(ctx, "CP-DIST", "websocket")

	// Assert: both nodes agree on the owner
	if !nodeA.IsLocal("CP-DIST") {
		t.Error("expected charger local on node A")
	}
	if nodeB.IsLocal("CP-DIST") {
		t.Error("expected charger not local on node B")
	}
	owner, err := nodeB.Owner(ctx, "CP-DIST")
	if err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if owner != "node-a" {
		t.Errorf("expected node-a as owner, got %q", owner)
	}

	// Detach clears the shared record
	nodeA.Detach(ctx, "CP-DIST")
	owner, err = nodeB.Owner(ctx, "CP-DIST")
	if err != nil {
		t.Fatalf("owner lookup after detach failed: %v", err)
	}
	if owner != "" {
		t.Errorf("expected no owner after detach, got %q", owner)
	}
}

func TestDistributedRegistry_RecordExpires(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Arrange: a very short TTL stands in for a crashed node
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	ctx := context.Background()

	nodeA := registry.NewDistributed(registry.NewLocal(), env.Redis, "node-a", 200*time.Millisecond, env.Logger)
	nodeB := registry.NewDistributed(registry.NewLocal(), env.Redis, "node-b", 200*time.Millisecond, env.Logger)
	nodeA.Attach(ctx, "CP-TTL", "mqtt")

	// Act: nobody refreshes the claim
	time.Sleep(400 * time.Millisecond)

	// Assert
	owner, err := nodeB.Owner(ctx, "CP-TTL")
	if err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if owner != "" {
		t.Errorf("expected stale claim to fade, got %q", owner)
	}
}

func TestDistributedRegistry_Shutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Arrange
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	ctx := context.Background()

	node := registry.NewDistributed(registry.NewLocal(), env.Redis, "node-a", 30*time.Second, env.Logger)
	node.Attach(ctx, "CP-S1", "websocket")
	node.Attach(ctx, "CP-S2", "websocket")

	// Act
	node.Shutdown(ctx)

	// Assert
	other := registry.NewDistributed(registry.NewLocal(), env.Redis, "node-b", 30*time.Second, env.Logger)
	for _, id := range []string{"CP-S1", "CP-S2"} {
		owner, err := other.Owner(ctx, id)
		if err != nil {
			t.Fatalf("owner lookup failed: %v", err)
		}
		if owner != "" {
			t.Errorf("expected claim for %s dropped on shutdown, got %q", id, owner)
		}
	}
}

func TestRelay_RoundTripBetweenNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Arrange: node B holds the charger and serves route traffic
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requester := registry.NewRelay(env.Redis, "node-a", 50*time.Millisecond, env.Logger)
	owner := registry.NewRelay(env.Redis, "node-b", 50*time.Millisecond, env.Logger)

	executed := make(chan string, 1)
	go owner.Serve(ctx,
		func(chargerID string) bool { return chargerID == "CP-RELAY" },
		func(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
			executed <- action
			return json.RawMessage(`{"status":"Accepted"}`), nil
		},
	)
	// Let the pattern subscription establish before publishing
	time.Sleep(200 * time.Millisecond)

	// Act
	resp, err := requester.Send(ctx, "CP-RELAY", "Reset", json.RawMessage(`{"type":"Soft"}`), 5*time.Second)

	// Assert
	if err != nil {
		t.Fatalf("relay send failed: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(resp, &out); err != nil {
		t.Fatalf("invalid relay response %q: %v", resp, err)
	}
	if out["status"] != "Accepted" {
		t.Errorf("expected Accepted, got %+v", out)
	}
	select {
	case action := <-executed:
		if action != "Reset" {
			t.Errorf("expected Reset executed on owning node, got %q", action)
		}
	case <-time.After(time.Second):
		t.Error("expected the owning node to execute the call")
	}
}

func TestRelay_NoSubscriberMeansNotConnected(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Arrange: nobody serves the route channels
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	requester := registry.NewRelay(env.Redis, "node-a", 50*time.Millisecond, env.Logger)

	// Act
	_, err := requester.Send(context.Background(), "CP-ORPHAN", "Reset", nil, time.Second)

	// Assert
	if err != domain.ErrChargerNotConnected {
		t.Fatalf("expected ErrChargerNotConnected, got %v", err)
	}
}

func TestRelay_RemoteFailureSurfaces(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Arrange
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requester := registry.NewRelay(env.Redis, "node-a", 50*time.Millisecond, env.Logger)
	owner := registry.NewRelay(env.Redis, "node-b", 50*time.Millisecond, env.Logger)
	go owner.Serve(ctx,
		func(chargerID string) bool { return true },
		func(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
			return nil, domain.ErrTimeout
		},
	)
	time.Sleep(200 * time.Millisecond)

	// Act
	_, err := requester.Send(ctx, "CP-FAIL", "Reset", nil, 5*time.Second)

	// Assert
	if err == nil {
		t.Fatal("expected the remote execution error to surface")
	}
}
