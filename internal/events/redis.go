package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultLatestTTL = 10 * time.Minute

// RedisSink keeps the latest presence event per camera under a TTL key.
type RedisSink struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSink(rdb *redis.Client, ttl time.Duration) *RedisSink {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	return &RedisSink{rdb: rdb, ttl: ttl}
}

func LatestKey(cameraID string) string {
	return fmt.Sprintf("det:latest:%s", cameraID)
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, ev PresenceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return s.rdb.Set(ctx, LatestKey(ev.CameraID), data, s.ttl).Err()
}

// Latest reads back the stored event for a camera.
func (s *RedisSink) Latest(ctx context.Context, cameraID string) (PresenceEvent, bool, error) {
	var ev PresenceEvent
	raw, err := s.rdb.Get(ctx, LatestKey(cameraID)).Bytes()
	if err == redis.Nil {
		return ev, false, nil
	}
	if err != nil {
		return ev, false, err
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, false, fmt.Errorf("decode latest event: %w", err)
	}
	return ev, true, nil
}
