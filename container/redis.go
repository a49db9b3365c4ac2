package container

import (
	"context"
	"fmt"

	"github.com/bfbechlin/appwrite-ctl/config"
	"github.com/go-redis/redis/v8"
)

// newRedis returns a single node client for one address and a cluster client for several.
func newRedis(ctx context.Context, conf config.Redis) (redis.UniversalClient, error) {
	if len(conf.Addrs) == 0 {
		return nil, fmt.Errorf("redis lock needs at least one address")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    conf.Addrs,
		Password: conf.Password,
		DB:       conf.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		if _err := client.Close(); _err != nil {
			err = fmt.Errorf("%w: close: %s", err, _err)
		}

		return nil, fmt.Errorf("error ping redis %v: %w", conf.Addrs, err)
	}

	return client, nil
}
