package service

import (
	"context"
	"fmt"
	"time"

	"gqx-gateway-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// Counter 是限流计数后端的窄接口。Incr 必须是原子的自增并返回
// 自增后的值；首次创建的 key 以给定的 ttl 过期，由后端自行回收。
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// redisCounter 基于 Redis INCR 实现计数。INCR 自身是原子操作，
// 并发请求不会丢失自增。
type redisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter 创建一个 Redis 计数后端。
func NewRedisCounter(rdb *redis.Client) Counter {
	return &redisCounter{rdb: rdb}
}

func (c *redisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		// 首次自增时设置过期，之后由 Redis 自动回收
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			log.Warnf("设置配额 key 过期失败: %s, %v", key, err)
		}
	}
	return n, nil
}

// QuotaService 按固定时间窗口统计每租户的请求数并做放行判断。
type QuotaService interface {
	// Admit 原子自增当前时间桶的计数并与上限比较。
	Admit(ctx context.Context, tenantID string, now time.Time) bool
}

type quotaService struct {
	counter    Counter
	window     time.Duration
	ceiling    int64
	failClosed bool
}

// NewQuotaService 创建一个 QuotaService。
// failClosed 为 false 时（默认），计数后端不可用会放行请求：
// 可用性优先于严格限流，这是有意的策略选择。
func NewQuotaService(counter Counter, windowSeconds int, ceiling int64, failClosed bool) QuotaService {
	return &quotaService{
		counter:    counter,
		window:     time.Duration(windowSeconds) * time.Second,
		ceiling:    ceiling,
		failClosed: failClosed,
	}
}

// Admit 计算当前时间桶的 key，原子自增后与上限比较。
// 自增与比较之间没有读-改-写窗口，同一 (租户, 桶) 上的并发请求
// 不会超放。
func (s *quotaService) Admit(ctx context.Context, tenantID string, now time.Time) bool {
	bucket := now.Unix() / int64(s.window.Seconds())
	key := fmt.Sprintf("quota:%s:%d", tenantID, bucket)

	n, err := s.counter.Incr(ctx, key, s.window+time.Second)
	if err != nil {
		log.Warnf("配额计数后端不可用 (tenant=%s): %v", tenantID, err)
		return !s.failClosed
	}
	return n <= s.ceiling
}
