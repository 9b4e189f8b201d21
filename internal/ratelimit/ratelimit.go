// Package ratelimit 基于 Redis 计数器实现按小时窗口的限流和登录失败锁定。
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter 是限流所需的 Redis 命令子集。
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

func incrWithTTL(ctx context.Context, client Counter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// Limiter 允许每个 key 每小时最多 limit 次。limit <= 0 表示不限。
type Limiter struct {
	client Counter
	prefix string
	limit  int
	now    func() time.Time
}

func NewLimiter(client Counter, prefix string, limit int) *Limiter {
	return &Limiter{client: client, prefix: prefix, limit: limit, now: time.Now}
}

// Allow 计入一次请求，并报告是否仍在额度内。
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	window := l.now().UTC().Format("2006010215")
	rateKey := "rate:" + l.prefix + ":" + strings.ToLower(key) + ":" + window
	count, err := incrWithTTL(ctx, l.client, rateKey, time.Hour)
	if err != nil {
		return false, err
	}
	return count <= int64(l.limit), nil
}

// LoginGuard 在连续失败 threshold 次后锁定账号 ttl 时长。
type LoginGuard struct {
	client    Counter
	threshold int
	ttl       time.Duration
}

func NewLoginGuard(client Counter, threshold int, ttl time.Duration) *LoginGuard {
	return &LoginGuard{client: client, threshold: threshold, ttl: ttl}
}

func lockKey(email string) string { return "lock:login:" + strings.ToLower(email) }
func failKey(email string) string { return "lock:login:fail:" + strings.ToLower(email) }

// Locked 报告账号当前是否被锁定。
func (g *LoginGuard) Locked(ctx context.Context, email string) (bool, error) {
	if g.threshold <= 0 {
		return false, nil
	}
	ttl, err := g.client.TTL(ctx, lockKey(email)).Result()
	if err != nil {
		return false, err
	}
	return ttl > 0, nil
}

// RecordFailure 记录一次失败登录，达到阈值时加锁。
func (g *LoginGuard) RecordFailure(ctx context.Context, email string) error {
	if g.threshold <= 0 {
		return nil
	}
	count, err := incrWithTTL(ctx, g.client, failKey(email), g.ttl)
	if err != nil {
		return err
	}
	if count >= int64(g.threshold) {
		return g.client.Set(ctx, lockKey(email), "1", g.ttl).Err()
	}
	return nil
}

// Reset 登录成功后清理失败计数。
func (g *LoginGuard) Reset(ctx context.Context, email string) error {
	return g.client.Del(ctx, failKey(email)).Err()
}
