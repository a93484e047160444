package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/heritagewhisper/keeper/pkg/models"
)

// RedisLedger stores rotation state in Redis sorted sets scored by epoch
// millis, so show/dismiss windows survive process restarts and are shared
// between instances.
type RedisLedger struct {
	pool *redis.Pool
}

// NewRedisLedger creates a ledger on an address like "localhost:6379".
func NewRedisLedger(addr string) *RedisLedger {
	return &RedisLedger{
		pool: &redis.Pool{
			MaxIdle:     4,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", addr)
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				if time.Since(t) < time.Minute {
					return nil
				}
				_, err := c.Do("PING")
				return err
			},
		},
	}
}

// Close releases the connection pool.
func (l *RedisLedger) Close() error {
	return l.pool.Close()
}

func shownKey(userID string) string   { return "rotation:shown:" + userID }
func dismissKey(userID string) string { return "rotation:dismissed:" + userID }

// MarkShown records a show event. The member encodes the surface so the
// same prompt shown on two surfaces keeps both timestamps.
func (l *RedisLedger) MarkShown(ctx context.Context, userID string, surface models.Surface, promptID string, at time.Time) error {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	key := shownKey(userID)
	member := string(surface) + "|" + promptID
	if err := conn.Send("ZADD", key, at.UnixMilli(), member); err != nil {
		return err
	}
	if err := conn.Send("PEXPIRE", key, (2 * ShowWindow).Milliseconds()); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}
	_, err = conn.Receive()
	return err
}

// MarkDismissed records a dismissal event.
func (l *RedisLedger) MarkDismissed(ctx context.Context, userID, promptID string, at time.Time) error {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	key := dismissKey(userID)
	if err := conn.Send("ZADD", key, at.UnixMilli(), promptID); err != nil {
		return err
	}
	if err := conn.Send("PEXPIRE", key, (2 * DismissWindow).Milliseconds()); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}
	_, err = conn.Receive()
	return err
}

// ShownSince returns prompts shown on any surface since the cutoff.
func (l *RedisLedger) ShownSince(ctx context.Context, userID string, cutoff time.Time) (map[string]bool, error) {
	members, err := l.rangeSince(ctx, shownKey(userID), cutoff)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(members))
	for _, m := range members {
		// Strip the "surface|" prefix.
		for i := 0; i < len(m); i++ {
			if m[i] == '|' {
				ids[m[i+1:]] = true
				break
			}
		}
	}
	return ids, nil
}

// DismissedSince returns prompts dismissed since the cutoff.
func (l *RedisLedger) DismissedSince(ctx context.Context, userID string, cutoff time.Time) (map[string]bool, error) {
	members, err := l.rangeSince(ctx, dismissKey(userID), cutoff)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(members))
	for _, m := range members {
		ids[m] = true
	}
	return ids, nil
}

// rangeSince trims expired members and returns the ones at or after cutoff.
func (l *RedisLedger) rangeSince(ctx context.Context, key string, cutoff time.Time) ([]string, error) {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Do("ZREMRANGEBYSCORE", key, "-inf", fmt.Sprintf("(%d", cutoff.UnixMilli())); err != nil {
		return nil, err
	}
	return redis.Strings(conn.Do("ZRANGEBYSCORE", key, cutoff.UnixMilli(), "+inf"))
}
