package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/payout-engine/pkg/logger"
)

// Locker 单个分发的互斥锁，保证同一时间只有一个 Process 在执行
type Locker interface {
	// TryLock 获取成功时返回租约；被占用时 ok 为 false
	TryLock(ctx context.Context, key string) (lease Lease, ok bool, err error)
}

// Lease 已持有的锁
type Lease interface {
	// Lost 续期失败（锁过期或被他人持有）时关闭
	Lost() <-chan struct{}
	// Release 停止续期并释放锁，可重复调用
	Release()
}

func lockKey(distributionID string) string {
	return fmt.Sprintf("distribution:lock:%s", distributionID)
}

// 仅当值仍为本次持有的 token 时删除，避免误删过期后被他人获取的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 仅当值仍为本次持有的 token 时续期
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的分布式锁，持有期间每 ttl/3 续期一次
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (Lease, bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	lease := &redisLease{
		client: l.client,
		key:    key,
		token:  token,
		ttl:    l.ttl,
		lost:   make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.heartbeat()
	return lease, true, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	lost     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (l *redisLease) Lost() <-chan struct{} { return l.lost }

func (l *redisLease) heartbeat() {
	defer close(l.done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil || n == 0 {
				logger.Warn("distribution lock lost",
					zap.String("key", l.key),
					zap.Error(err),
				)
				close(l.lost)
				return
			}
		}
	}
}

func (l *redisLease) Release() {
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	})
}

// LocalLocker 进程内锁，未配置 Redis 时使用
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	return &localLease{locker: l, key: key}, true, nil
}

// localLease 进程内锁不会过期，Lost 永不关闭
type localLease struct {
	locker *LocalLocker
	key    string
	once   sync.Once
}

func (l *localLease) Lost() <-chan struct{} { return nil }

func (l *localLease) Release() {
	l.once.Do(func() {
		l.locker.mu.Lock()
		delete(l.locker.held, l.key)
		l.locker.mu.Unlock()
	})
}
