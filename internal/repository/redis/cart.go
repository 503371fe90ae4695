package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dralsallum/theKnot-sub000/internal/repository"
	"github.com/dralsallum/theKnot-sub000/internal/store"
	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

const (
	keyPrefix        = "cart:"
	pendingKeyPrefix = "cart_payment:"
	fieldVersion     = "version"
	fieldData        = "data"
)

// saveIfNewer writes the snapshot only when it is newer than the stored one.
// KEYS[1] cart key; ARGV[1] version, ARGV[2] JSON state, ARGV[3] ttl in ms.
var saveIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// CartRepository implements repository.SessionRepository. Each user has a
// Redis hash holding the snapshot version and the JSON-encoded cart state, and
// a string holding the JSON-encoded pending payment.
type CartRepository struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCartRepository creates a Redis-backed cart repository. Snapshots expire
// ttl after their last save; a zero ttl keeps them forever.
func NewCartRepository(client redis.Cmdable, ttl time.Duration) *CartRepository {
	return &CartRepository{client: client, ttl: ttl}
}

var _ repository.SessionRepository = (*CartRepository)(nil)

func key(userID string) string {
	return keyPrefix + userID
}

func pendingKey(userID string) string {
	return pendingKeyPrefix + userID
}

// Get retrieves a cart snapshot by user ID.
func (r *CartRepository) Get(ctx context.Context, userID string) (*store.Snapshot, error) {
	cmd := r.client.HMGet(ctx, key(userID), fieldVersion, fieldData)
	vals, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, apperrors.NotFound("cart", userID)
	}

	rawVersion, _ := vals[0].(string)
	rawData, _ := vals[1].(string)

	version, err := strconv.ParseUint(rawVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse cart version: %w", err)
	}

	snap := store.Snapshot{Version: version}
	if err := json.Unmarshal([]byte(rawData), &snap.State); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &snap, nil
}

// Save persists snap with the configured TTL unless a newer version exists.
func (r *CartRepository) Save(ctx context.Context, userID string, snap store.Snapshot) (bool, error) {
	data, err := json.Marshal(snap.State)
	if err != nil {
		return false, fmt.Errorf("marshal cart: %w", err)
	}

	written, err := saveIfNewer.Run(ctx, r.client, []string{key(userID)},
		snap.Version, data, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis save cart: %w", err)
	}
	return written == 1, nil
}

// Delete removes a cart snapshot by user ID.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}

// Touch restarts the snapshot's TTL so a cart in use does not expire between
// saves.
func (r *CartRepository) Touch(ctx context.Context, userID string) error {
	if r.ttl <= 0 {
		return nil
	}
	if err := r.client.PExpire(ctx, key(userID), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis touch cart: %w", err)
	}
	return nil
}

// GetPending retrieves the user's pending payment.
func (r *CartRepository) GetPending(ctx context.Context, userID string) (*repository.PendingPayment, error) {
	raw, err := r.client.Get(ctx, pendingKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("pending payment", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get pending payment: %w", err)
	}

	var p repository.PendingPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending payment: %w", err)
	}
	return &p, nil
}

// SavePending stores p with the cart TTL.
func (r *CartRepository) SavePending(ctx context.Context, userID string, p repository.PendingPayment) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending payment: %w", err)
	}
	if err := r.client.Set(ctx, pendingKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis save pending payment: %w", err)
	}
	return nil
}

// DeletePending removes the user's pending payment.
func (r *CartRepository) DeletePending(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, pendingKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del pending payment: %w", err)
	}
	return nil
}
