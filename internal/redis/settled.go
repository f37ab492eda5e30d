package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct {
	Client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

// Markers expire on their own; the order ledger is the durable record and
// a missing marker just means one extra database lookup.
const settledTTL = 24 * time.Hour

const settledPrefix = "settled_ref:"

// MarkSettled records that a payment ref has settled. Written only after
// the settlement transaction commits.
func (r *Redis) MarkSettled(ctx context.Context, paymentRef string) error {
	key := settledPrefix + paymentRef
	return r.Client.Set(ctx, key, "1", settledTTL).Err()
}

// IsSettled reports whether a payment ref has a settled marker. Callers
// must treat a hit as a hint and re-read the order from storage.
func (r *Redis) IsSettled(ctx context.Context, paymentRef string) (bool, error) {
	key := settledPrefix + paymentRef
	_, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
