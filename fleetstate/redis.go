package fleetstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const flagsTTL = 10 * time.Minute

// RedisStore caches robot flags so read endpoints and other processes see
// the last written state without a database round trip.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func flagsKey(robotID int64) string {
	return fmt.Sprintf("robofleet:robot:%d:flags", robotID)
}

func (r *RedisStore) SetFlags(ctx context.Context, f *Flags) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, flagsKey(f.RobotID), data, flagsTTL).Err()
}

// GetFlags returns nil, nil on a cache miss.
func (r *RedisStore) GetFlags(ctx context.Context, robotID int64) (*Flags, error) {
	data, err := r.client.Get(ctx, flagsKey(robotID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f Flags
	return &f, json.Unmarshal(data, &f)
}

func (r *RedisStore) RemoveFlags(ctx context.Context, robotID int64) error {
	return r.client.Del(ctx, flagsKey(robotID)).Err()
}
