package testutil

import (
	"context"
	"fmt"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// StartRedis runs a Redis container and returns its address.
func StartRedis(pool *dockertest.Pool) (_ string, _ Cleanup, err error) {
	pool, err = initDockertest(pool)
	if err != nil {
		return "", nil, err
	}

	resource, cleanup, err := run(pool, &dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	})
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, cleanup())
		}
	}()

	addr := resource.GetHostPort("6379/tcp")
	err = pool.Retry(func() error {
		cli := redis.NewClient(&redis.Options{Addr: addr})
		defer cli.Close()
		return cli.Ping(context.Background()).Err()
	})
	if err != nil {
		return "", nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return addr, cleanup, nil
}
