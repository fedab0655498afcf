// Package testutil starts throwaway Postgres and Redis containers for
// integration tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"go.uber.org/multierr"
)

type Cleanup func() error

const (
	maxUpwardTraversal = 10
	expireSeconds      = 120
)

var errFileOrDirectoryNotFound = fmt.Errorf("file or directory not found")

func initDockertest(pool *dockertest.Pool) (*dockertest.Pool, error) {
	if pool == nil {
		var err error
		pool, err = dockertest.NewPool("")
		if err != nil {
			return nil, fmt.Errorf("could not construct pool: %w", err)
		}
	}

	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to Docker: %w", err)
	}
	return pool, nil
}

func run(pool *dockertest.Pool, opts *dockertest.RunOptions) (*dockertest.Resource, Cleanup, error) {
	resource, err := pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not run %s container: %w", opts.Repository, err)
	}

	cleanup := func() error {
		if err := pool.Purge(resource); err != nil {
			return fmt.Errorf("could not purge %s container: %w", opts.Repository, err)
		}
		return nil
	}

	if err := setExpiry(resource.Expire, cleanup); err != nil {
		return nil, nil, err
	}
	return resource, cleanup, nil
}

// setExpiry limits how long a container outlives a crashed test run. The
// container is purged when no limit can be set.
func setExpiry(expire func(seconds uint) error, cleanup Cleanup) error {
	if err := expire(expireSeconds); err != nil {
		return multierr.Append(fmt.Errorf("could not set expiry: %w", err), cleanup())
	}
	return nil
}

// findUpward looks for name in the working directory and its parents.
func findUpward(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("could not get working directory: %w", err)
	}

	for i := 0; i < maxUpwardTraversal; i++ {
		path := filepath.Join(dir, name)
		if _, err = os.Stat(path); err == nil {
			return path, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("could not stat %s: %w", path, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errFileOrDirectoryNotFound
}
