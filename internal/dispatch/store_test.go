package dispatch

import (
	"context"
	"sync"
	"testing"
)

// TestMemoryStore_ClaimLifecycle walks one record through the full state
// machine.
func TestMemoryStore_ClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := "abc123"

	claim, _, err := store.Claim(ctx, key)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if claim != ClaimAcquired {
		t.Fatalf("first Claim() = %q, want %q", claim, ClaimAcquired)
	}

	claim, _, _ = store.Claim(ctx, key)
	if claim != ClaimInFlight {
		t.Errorf("Claim() while pending = %q, want %q", claim, ClaimInFlight)
	}

	if err := store.Release(ctx, key); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	claim, _, _ = store.Claim(ctx, key)
	if claim != ClaimAcquired {
		t.Errorf("Claim() after release = %q, want %q", claim, ClaimAcquired)
	}

	if err := store.MarkDelivered(ctx, key); err != nil {
		t.Fatalf("MarkDelivered() error = %v", err)
	}
	claim, status, _ := store.Claim(ctx, key)
	if claim != ClaimDuplicate || status != StatusDelivered {
		t.Errorf("Claim() after delivery = %q/%q, want %q/%q", claim, status, ClaimDuplicate, StatusDelivered)
	}

	rec, ok, _ := store.Get(ctx, key)
	if !ok {
		t.Fatal("Get() record missing")
	}
	if rec.AttemptCount != 2 {
		t.Errorf("attempt count = %d, want 2", rec.AttemptCount)
	}
}

// TestMemoryStore_ClaimDeadLettered verifies the dead-lettered status is
// surfaced to duplicate claimers.
func TestMemoryStore_ClaimDeadLettered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := "abc123"

	if _, _, err := store.Claim(ctx, key); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if err := store.MarkDeadLettered(ctx, key); err != nil {
		t.Fatalf("MarkDeadLettered() error = %v", err)
	}

	claim, status, _ := store.Claim(ctx, key)
	if claim != ClaimDuplicate || status != StatusDeadLettered {
		t.Errorf("Claim() = %q/%q, want %q/%q", claim, status, ClaimDuplicate, StatusDeadLettered)
	}
}

// TestMemoryStore_ConcurrentClaims verifies exactly one of many concurrent
// claimers acquires the same dedup key.
func TestMemoryStore_ConcurrentClaims(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := "contested"

	const goroutines = 50
	var wg sync.WaitGroup
	results := make(chan ClaimResult, goroutines)
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claim, _, err := store.Claim(ctx, key)
			if err != nil {
				t.Errorf("Claim() error = %v", err)
				return
			}
			results <- claim
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	acquired := 0
	for claim := range results {
		if claim == ClaimAcquired {
			acquired++
		} else if claim != ClaimInFlight {
			t.Errorf("unexpected claim result %q", claim)
		}
	}
	if acquired != 1 {
		t.Errorf("acquired claims = %d, want exactly 1", acquired)
	}
}

// TestMemoryStore_GetMissing verifies ok=false for unknown keys.
func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, ok, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for unknown key")
	}
}

// TestStatus_IsTerminal enumerates terminal and non-terminal statuses.
func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusFailed, false},
		{StatusDelivered, true},
		{StatusDeadLettered, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
