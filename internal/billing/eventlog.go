// AngelaMos | 2026
// eventlog.go

package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PayPal retries a delivery for up to three days.
const eventRetention = 72 * time.Hour

type RedisEventLog struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisEventLog(rdb *redis.Client) *RedisEventLog {
	return &RedisEventLog{
		rdb:    rdb,
		prefix: "billing:paypal:event:",
	}
}

func (l *RedisEventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	_, err := l.rdb.Get(ctx, l.prefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup webhook event: %w", err)
	}
	return true, nil
}

func (l *RedisEventLog) Mark(ctx context.Context, eventID string) error {
	err := l.rdb.Set(ctx, l.prefix+eventID, time.Now().UTC().Format(time.RFC3339),
		eventRetention).Err()
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}
