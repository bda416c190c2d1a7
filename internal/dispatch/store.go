package dispatch

import (
	"context"
	"sync"
)

// Status tracks the delivery state of one alert candidate.
type Status string

const (
	// StatusPending means a worker has claimed the candidate and a send is
	// in flight.
	StatusPending Status = "PENDING"
	// StatusDelivered means the outbound message was observed by the channel.
	StatusDelivered Status = "DELIVERED"
	// StatusFailed means the last send attempt failed transiently; the
	// candidate may be claimed again on redelivery.
	StatusFailed Status = "FAILED"
	// StatusDeadLettered means delivery failed permanently and will never
	// be retried.
	StatusDeadLettered Status = "DEAD_LETTERED"
)

// IsTerminal reports whether the status ends the candidate's journey.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusDeadLettered
}

// Record tracks delivery state and attempts for one dedup key.
type Record struct {
	DedupKey     string
	Status       Status
	AttemptCount int
}

// ClaimResult is the outcome of an atomic claim on a dedup key.
type ClaimResult string

const (
	// ClaimAcquired means this worker owns the send for the candidate.
	ClaimAcquired ClaimResult = "acquired"
	// ClaimDuplicate means the candidate already reached a terminal state;
	// the caller must not resend.
	ClaimDuplicate ClaimResult = "duplicate"
	// ClaimInFlight means another worker is currently sending this
	// candidate; the caller should back off and let the broker redeliver.
	ClaimInFlight ClaimResult = "in_flight"
)

// Store persists dispatch records at least long enough to make redelivery
// idempotent. Claim must be an atomic check-and-set: concurrent redelivery
// of the same candidate yields exactly one acquired claim.
type Store interface {
	// Claim atomically inspects the record for dedupKey. If the status is
	// terminal it returns ClaimDuplicate with the stored status; if a send
	// is already in flight it returns ClaimInFlight; otherwise it
	// transitions the record to Pending, increments the attempt count and
	// returns ClaimAcquired.
	Claim(ctx context.Context, dedupKey string) (ClaimResult, Status, error)

	// MarkDelivered transitions the record to Delivered.
	MarkDelivered(ctx context.Context, dedupKey string) error

	// MarkDeadLettered transitions the record to DeadLettered.
	MarkDeadLettered(ctx context.Context, dedupKey string) error

	// Release transitions a Pending record back to Failed so a later
	// redelivery can claim it again.
	Release(ctx context.Context, dedupKey string) error

	// Get returns the record for dedupKey, with ok=false when none exists.
	Get(ctx context.Context, dedupKey string) (Record, bool, error)
}

// MemoryStore is the in-process Store used by the single-process demo and
// by tests. Production deployments with multiple processor instances use
// the Redis store instead.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory dispatch record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Claim implements the atomic check-and-set under a single mutex.
func (s *MemoryStore) Claim(ctx context.Context, dedupKey string) (ClaimResult, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[dedupKey]
	if !ok {
		rec = &Record{DedupKey: dedupKey}
		s.records[dedupKey] = rec
	}

	switch {
	case rec.Status.IsTerminal():
		return ClaimDuplicate, rec.Status, nil
	case rec.Status == StatusPending:
		return ClaimInFlight, rec.Status, nil
	default:
		rec.Status = StatusPending
		rec.AttemptCount++
		return ClaimAcquired, rec.Status, nil
	}
}

// MarkDelivered transitions the record to Delivered.
func (s *MemoryStore) MarkDelivered(ctx context.Context, dedupKey string) error {
	return s.setStatus(dedupKey, StatusDelivered)
}

// MarkDeadLettered transitions the record to DeadLettered.
func (s *MemoryStore) MarkDeadLettered(ctx context.Context, dedupKey string) error {
	return s.setStatus(dedupKey, StatusDeadLettered)
}

// Release transitions a Pending record back to Failed.
func (s *MemoryStore) Release(ctx context.Context, dedupKey string) error {
	return s.setStatus(dedupKey, StatusFailed)
}

// Get returns the record for dedupKey.
func (s *MemoryStore) Get(ctx context.Context, dedupKey string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[dedupKey]
	if !ok {
		return Record{}, false, nil
	}
	return *rec, true, nil
}

func (s *MemoryStore) setStatus(dedupKey string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[dedupKey]
	if !ok {
		rec = &Record{DedupKey: dedupKey}
		s.records[dedupKey] = rec
	}
	rec.Status = status
	return nil
}
