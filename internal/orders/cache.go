package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront/internal/redisx"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// CachedStatus is what the status cache keeps per order.
type CachedStatus struct {
	UserID    int64  `json:"user_id"`
	Status    Status `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// StatusCache fronts order status lookups. Redis errors degrade to a miss.
type StatusCache struct {
	RDB redis.Cmdable
}

func (c *StatusCache) Set(ctx context.Context, orderID, userID int64, st Status) error {
	if c == nil || c.RDB == nil {
		return nil
	}
	b, _ := json.Marshal(CachedStatus{UserID: userID, Status: st, UpdatedAt: time.Now().UTC().Format(time.RFC3339)})
	return c.RDB.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), b, redisx.TTLStatusCache).Err()
}

func (c *StatusCache) Get(ctx context.Context, orderID int64) (CachedStatus, bool) {
	if c == nil || c.RDB == nil {
		return CachedStatus{}, false
	}
	b, err := c.RDB.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Bytes()
	if err != nil {
		return CachedStatus{}, false
	}
	var cs CachedStatus
	if err := json.Unmarshal(b, &cs); err != nil {
		return CachedStatus{}, false
	}
	return cs, true
}

// Invalidate drops the entry, e.g. after the order is deleted.
func (c *StatusCache) Invalidate(ctx context.Context, orderID int64) error {
	if c == nil || c.RDB == nil {
		return nil
	}
	return c.RDB.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}
