package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis stores JSON-encoded entries under a key prefix. A zero ttl keeps
// entries until they are overwritten.
type Redis struct {
	r      redis.Cmdable
	closer io.Closer
	prefix string
	ttl    time.Duration
}

func NewRedis(r redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	s := &Redis{r: r, prefix: prefix, ttl: ttl}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// DialRedis connects using a redis:// URL and checks the connection.
func DialRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *Redis) namespaced(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	b, err := s.r.Get(ctx, s.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var ent Entry
	if err := json.Unmarshal(b, &ent); err != nil {
		return Entry{}, false, fmt.Errorf("decode archived %s: %w", key, err)
	}
	return ent, true, nil
}

func (s *Redis) Put(ctx context.Context, key string, ent Entry) error {
	b, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	return s.r.Set(ctx, s.namespaced(key), b, s.ttl).Err()
}

func (s *Redis) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.r.Ping(ctx).Err()
}
