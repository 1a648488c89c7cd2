// Package dbtest starts a throwaway Postgres for integration tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"acquire-server/internal/database"
)

const image = "postgres:16-alpine"

// New returns a migrated database service backed by a fresh container. The
// test is skipped under -short or when no container runtime is reachable.
func New(t *testing.T) database.Service {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("acquire"),
		postgres.WithUsername("acquire"),
		postgres.WithPassword("acquire"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	svc, err := database.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	require.NoError(t, svc.Migrate(ctx))
	return svc
}
