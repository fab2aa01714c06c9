package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces handle state hashes in Redis.
const KeyPrefix = "consult:task:"

// StateTracker records handle state outside the broker, which cannot be
// queried by message id.
type StateTracker interface {
	// Claim registers a new handle as pending. It fails with
	// queue.ErrDuplicateHandle if the handle is already known.
	Claim(ctx context.Context, handle string) error
	// Release forgets a handle whose publish failed.
	Release(ctx context.Context, handle string) error
	Set(ctx context.Context, st queue.HandleStatus) error
	Get(ctx context.Context, handle string) (queue.HandleStatus, error)
}

// RedisStateTracker keeps one hash per handle with a rolling TTL.
type RedisStateTracker struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ StateTracker = (*RedisStateTracker)(nil)

// NewRedisStateTracker creates a tracker. ttl bounds how long a handle stays
// inspectable after its last transition.
func NewRedisStateTracker(rdb redis.UniversalClient, ttl time.Duration) *RedisStateTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStateTracker{rdb: rdb, ttl: ttl}
}

func key(handle string) string {
	return KeyPrefix + handle
}

// Claim implements StateTracker.
func (t *RedisStateTracker) Claim(ctx context.Context, handle string) error {
	ok, err := t.rdb.HSetNX(ctx, key(handle), "state", string(queue.StatePending)).Result()
	if err != nil {
		return fmt.Errorf("claim handle %s: %w", handle, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrDuplicateHandle, handle)
	}
	if err := t.rdb.Expire(ctx, key(handle), t.ttl).Err(); err != nil {
		return fmt.Errorf("expire handle %s: %w", handle, err)
	}
	return nil
}

// Release implements StateTracker.
func (t *RedisStateTracker) Release(ctx context.Context, handle string) error {
	return t.rdb.Del(ctx, key(handle)).Err()
}

// Set implements StateTracker.
func (t *RedisStateTracker) Set(ctx context.Context, st queue.HandleStatus) error {
	k := key(st.Handle)
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k,
			"state", string(st.State),
			"attempt", st.Attempt,
			"error", st.Error,
		)
		p.Expire(ctx, k, t.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set state for %s: %w", st.Handle, err)
	}
	return nil
}

// Get implements StateTracker. Unknown handles read as pending.
func (t *RedisStateTracker) Get(ctx context.Context, handle string) (queue.HandleStatus, error) {
	fields, err := t.rdb.HGetAll(ctx, key(handle)).Result()
	if err != nil {
		return queue.HandleStatus{}, fmt.Errorf("get state for %s: %w", handle, err)
	}
	if len(fields) == 0 {
		return queue.UnknownHandle(handle), nil
	}

	st := queue.HandleStatus{
		Handle: handle,
		State:  queue.State(fields["state"]),
		Error:  fields["error"],
	}
	if n, err := strconv.Atoi(fields["attempt"]); err == nil {
		st.Attempt = n
	}
	st.Message = st.State.Message()
	return st, nil
}
