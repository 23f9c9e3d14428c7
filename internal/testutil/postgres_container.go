//go:build integration

package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// PostgresUser is the test database's superuser.
	PostgresUser = "sealctl"
	// PostgresPassword is the test database's password.
	PostgresPassword = "sealctl"
	// PostgresDB is the test database name.
	PostgresDB = "sealctl_test"

	// StartupTimeout bounds how long to wait for Postgres to accept
	// connections, accounting for cold image pulls on CI runners.
	StartupTimeout = 60 * time.Second
)

// PostgresContainer wraps a running Postgres testcontainer and its DSN.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DSN       string
}

// StartPostgresContainer starts a disposable Postgres 16 instance.
func StartPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase(PostgresDB),
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(StartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("testutil: start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("testutil: connection string: %w", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn}, nil
}

// Stop terminates the container. Tests should defer this from TestMain.
func (p *PostgresContainer) Stop(ctx context.Context) error {
	return p.Container.Terminate(ctx)
}
