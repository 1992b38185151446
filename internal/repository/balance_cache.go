package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const balanceCacheTTL = time.Minute

// BalanceCache is a read-through cache for the two spendable counters.
// Writers delete the key after committing; readers repopulate it. A miss or
// a Redis failure falls back to the database.
type BalanceCache struct {
	rdb *redis.Client
}

func NewBalanceCache(rdb *redis.Client) *BalanceCache {
	if rdb == nil {
		return nil
	}
	return &BalanceCache{rdb: rdb}
}

func balanceKey(userID int64) string {
	return fmt.Sprintf("balance:%d", userID)
}

func (c *BalanceCache) Get(ctx context.Context, userID int64) (paid, free int64, ok bool) {
	val, err := c.rdb.Get(ctx, balanceKey(userID)).Result()
	if err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(val, "%d:%d", &paid, &free); err != nil {
		return 0, 0, false
	}
	return paid, free, true
}

func (c *BalanceCache) Set(ctx context.Context, userID, paid, free int64) {
	_ = c.rdb.Set(ctx, balanceKey(userID), fmt.Sprintf("%d:%d", paid, free), balanceCacheTTL).Err()
}

func (c *BalanceCache) Delete(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, balanceKey(userID)).Err()
}
