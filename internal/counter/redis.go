// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smarthunt/relay/internal/metrics"
)

// RedisConfig configures the Redis connection backing the counter service.
type RedisConfig struct {
	URL            string
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

// Connect establishes a Redis connection, retrying RetryAttempts times
// with RetryInterval between attempts before giving up.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, fmt.Errorf("%w: redis not reachable at %s", ErrUnavailable, cfg.URL)
}

// RedisService implements Service on a shared Redis instance. Each user's
// unread notifications live in the set "unread:<user>"; SADD, SREM and
// DEL are atomic on the server, which gives the idempotency and
// lost-update guarantees without read-modify-write cycles.
type RedisService struct {
	client *redis.Client
}

// NewRedisService wraps an established Redis client.
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

func unreadKey(userID string) string {
	return "unread:" + userID
}

// MarkUnread implements Service.
func (s *RedisService) MarkUnread(ctx context.Context, userID string, notificationID int64) (int64, error) {
	key := unreadKey(userID)
	member := strconv.FormatInt(notificationID, 10)

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, member)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordCounterError()
		return 0, fmt.Errorf("%w: mark unread: %v", ErrUnavailable, err)
	}
	return card.Val(), nil
}

// MarkRead implements Service. Removing an absent member is a no-op, so
// repeated mark_read commands for the same notification are harmless and
// the count cannot go negative.
func (s *RedisService) MarkRead(ctx context.Context, userID string, notificationID int64) (int64, error) {
	key := unreadKey(userID)
	member := strconv.FormatInt(notificationID, 10)

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, key, member)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordCounterError()
		return 0, fmt.Errorf("%w: mark read: %v", ErrUnavailable, err)
	}
	return card.Val(), nil
}

// MarkAllRead implements Service.
func (s *RedisService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, unreadKey(userID)).Err(); err != nil {
		metrics.RecordCounterError()
		return fmt.Errorf("%w: mark all read: %v", ErrUnavailable, err)
	}
	return nil
}

// Count implements Service.
func (s *RedisService) Count(ctx context.Context, userID string) (int64, error) {
	count, err := s.client.SCard(ctx, unreadKey(userID)).Result()
	if err != nil {
		metrics.RecordCounterError()
		return 0, fmt.Errorf("%w: count: %v", ErrUnavailable, err)
	}
	return count, nil
}

// Ping reports backing store reachability for health checks.
func (s *RedisService) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
