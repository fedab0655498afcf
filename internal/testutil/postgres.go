package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/ory/dockertest/v3"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/multierr"
)

// StartPostgres runs a Postgres container with schema.sql applied and returns
// its connection string.
func StartPostgres(pool *dockertest.Pool) (_ string, _ Cleanup, err error) {
	pool, err = initDockertest(pool)
	if err != nil {
		return "", nil, err
	}

	schemaPath, err := findUpward("schema.sql")
	if err != nil {
		return "", nil, fmt.Errorf("could not find schema.sql: %w", err)
	}
	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		return "", nil, fmt.Errorf("could not read schema: %w", err)
	}

	resource, cleanup, err := run(pool, &dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=messagely",
			"POSTGRES_PASSWORD=messagely",
			"POSTGRES_DB=messagely",
		},
	})
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, cleanup())
		}
	}()

	connStr := fmt.Sprintf("postgres://messagely:messagely@%s/messagely?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var db *sql.DB
	err = pool.Retry(func() error {
		db = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
		if pingErr := db.Ping(); pingErr != nil {
			_ = db.Close()
			return pingErr
		}
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("could not connect to postgres: %w", err)
	}
	defer db.Close()

	if _, err = db.ExecContext(context.Background(), string(schema)); err != nil {
		return "", nil, fmt.Errorf("could not apply schema: %w", err)
	}
	return connStr, cleanup, nil
}
