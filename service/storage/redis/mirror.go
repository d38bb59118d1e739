package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "bridge:session:"

// Mirror stores identity -> resource under prefix+identity. A zero ttl keeps
// keys forever.
type Mirror struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewMirror(rdb redis.Cmdable, prefix string, ttl time.Duration) *Mirror {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Mirror{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (m *Mirror) key(identity string) string { return m.prefix + identity }

func (m *Mirror) Save(ctx context.Context, identity, resource string) error {
	if err := m.rdb.Set(ctx, m.key(identity), resource, m.ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", m.key(identity))
	}
	return nil
}

// Load reports ok=false without error when the key is absent.
func (m *Mirror) Load(ctx context.Context, identity string) (string, bool, error) {
	val, err := m.rdb.Get(ctx, m.key(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "redis get %s", m.key(identity))
	}
	return val, true, nil
}
