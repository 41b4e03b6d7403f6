package dedupe

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var redisSetPrefix = "engagebot/processed/"

// Durable store keeping one redis SET per kind. Useful when the bot runs on ephemeral hosts.
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		Client: rdb,
	}, nil
}

func (s *RedisStore) HasProcessed(ctx context.Context, kind, id string) (bool, error) {
	return s.Client.SIsMember(ctx, redisSetPrefix+kind, id).Result()
}

func (s *RedisStore) MarkProcessed(ctx context.Context, kind, id string) error {
	return s.Client.SAdd(ctx, redisSetPrefix+kind, id).Err()
}

func (s *RedisStore) Len(ctx context.Context, kind string) (int, error) {
	n, err := s.Client.SCard(ctx, redisSetPrefix+kind).Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return int(n), nil
}
