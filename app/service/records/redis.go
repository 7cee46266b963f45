package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each user as a JSON string under {prefix}user:{email}
// and the set of known emails under {prefix}users.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
	}
}

// ConnectRedis accepts a redis:// URL or a bare host:port address.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{
			Addr: url,
		}
	}

	rdb := redis.NewClient(opt)
	if err = rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

func (s *RedisStore) GetRecord(ctx context.Context, email string) (*User, error) {
	data, err := s.rdb.Get(ctx, s.userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user User
	if err = json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &user, nil
}

func (s *RedisStore) PutRecord(ctx context.Context, email string, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.userKey(email), data, 0)
		pipe.SAdd(ctx, s.indexKey(), Key(email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*User, error) {
	emails, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(emails))
	if len(emails) == 0 {
		return users, nil
	}

	keys := make([]string, 0, len(emails))
	for _, email := range emails {
		keys = append(keys, s.userKey(email))
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var user User
		if err = json.Unmarshal([]byte(raw), &user); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user: %w", err)
		}

		users = append(users, &user)
	}

	return users, nil
}

func (s *RedisStore) userKey(email string) string {
	return s.prefix + "user:" + Key(email)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "users"
}
