package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/go-redis/redis/v8"
	"github.com/satori/uuid"
	"github.com/yusufsyaifudin/ylog"
)

const DefaultTTL = 30 * time.Minute

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key only when it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisConfig struct {
	Client redis.UniversalClient `validate:"required"`
	TTL    time.Duration         `validate:"-"`

	// Refresh is how often a held lock gets its TTL renewed, TTL/3 by default.
	Refresh time.Duration `validate:"-"`
}

type Redis struct {
	client  redis.UniversalClient
	ttl     time.Duration
	refresh time.Duration
}

var _ Locker = (*Redis)(nil)

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("redis lock config: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	refresh := cfg.Refresh
	if refresh <= 0 || refresh >= ttl {
		refresh = ttl / 3
	}

	return &Redis{client: cfg.Client, ttl: ttl, refresh: refresh}, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (release func(), err error) {
	token := uuid.NewV4().String()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		err = fmt.Errorf("acquire lock %s: %w", key, err)
		return
	}

	if !ok {
		err = fmt.Errorf("%w: %s", ErrLocked, key)
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(ctx, key, token, stop, done)

	var once sync.Once
	release = func() {
		once.Do(func() {
			close(stop)
			<-done

			// the caller's context may already be canceled at this point
			_err := releaseScript.Run(context.Background(), r.client, []string{key}, token).Err()
			if _err != nil {
				ylog.Warn(ctx, "release lock failed", ylog.KV("key", key), ylog.KV("error", _err))
			}
		})
	}

	return
}

// keepAlive renews the TTL while the run holds the lock, so long runs never outlive it.
func (r *Redis) keepAlive(ctx context.Context, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := refreshScript.Run(context.Background(), r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			switch {
			case err != nil:
				ylog.Warn(ctx, "refresh lock failed", ylog.KV("key", key), ylog.KV("error", err))
			case n == 0:
				ylog.Error(ctx, "lock lost to another run", ylog.KV("key", key))
				return
			}
		}
	}
}
