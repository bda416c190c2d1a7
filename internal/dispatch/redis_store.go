package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// recordKeyPrefix namespaces dispatch records in Redis.
	recordKeyPrefix = "dispatch:"
	// recordTTL keeps records long enough to absorb any realistic
	// redelivery window without growing the keyspace forever.
	recordTTL = 24 * time.Hour
)

// claimScript performs the atomic check-and-set on a dedup key.
// Returns the stored status for terminal records, "IN_FLIGHT" for pending
// ones, and "ACQUIRED" after claiming.
var claimScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])

local status = redis.call('HGET', key, 'status')
if status == 'DELIVERED' or status == 'DEAD_LETTERED' then
	return status
end
if status == 'PENDING' then
	return 'IN_FLIGHT'
end

redis.call('HSET', key, 'status', 'PENDING')
redis.call('HINCRBY', key, 'attempts', 1)
redis.call('EXPIRE', key, ttl)
return 'ACQUIRED'
`)

// RedisStore is the shared dispatch record store for multi-instance
// deployments. All state transitions run server-side so concurrent
// redelivery of the same candidate across processes yields one send.
type RedisStore struct {
	client *redis.Client
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a dispatch record store over the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(dedupKey string) string {
	return recordKeyPrefix + dedupKey
}

// Claim implements the atomic check-and-set via a Lua script.
func (s *RedisStore) Claim(ctx context.Context, dedupKey string) (ClaimResult, Status, error) {
	result, err := claimScript.Run(ctx, s.client,
		[]string{recordKey(dedupKey)},
		int(recordTTL.Seconds()),
	).Text()
	if err != nil {
		return "", "", fmt.Errorf("failed to claim dispatch record: %w", err)
	}

	switch result {
	case "ACQUIRED":
		return ClaimAcquired, StatusPending, nil
	case "IN_FLIGHT":
		return ClaimInFlight, StatusPending, nil
	default:
		return ClaimDuplicate, Status(result), nil
	}
}

// MarkDelivered transitions the record to Delivered.
func (s *RedisStore) MarkDelivered(ctx context.Context, dedupKey string) error {
	return s.setStatus(ctx, dedupKey, StatusDelivered)
}

// MarkDeadLettered transitions the record to DeadLettered.
func (s *RedisStore) MarkDeadLettered(ctx context.Context, dedupKey string) error {
	return s.setStatus(ctx, dedupKey, StatusDeadLettered)
}

// Release transitions a Pending record back to Failed.
func (s *RedisStore) Release(ctx context.Context, dedupKey string) error {
	return s.setStatus(ctx, dedupKey, StatusFailed)
}

// Get returns the record for dedupKey.
func (s *RedisStore) Get(ctx context.Context, dedupKey string) (Record, bool, error) {
	values, err := s.client.HGetAll(ctx, recordKey(dedupKey)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read dispatch record: %w", err)
	}
	if len(values) == 0 {
		return Record{}, false, nil
	}

	attempts, _ := strconv.Atoi(values["attempts"])
	return Record{
		DedupKey:     dedupKey,
		Status:       Status(values["status"]),
		AttemptCount: attempts,
	}, true, nil
}

func (s *RedisStore) setStatus(ctx context.Context, dedupKey string, status Status) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, recordKey(dedupKey), "status", string(status))
	pipe.Expire(ctx, recordKey(dedupKey), recordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update dispatch record: %w", err)
	}
	return nil
}
