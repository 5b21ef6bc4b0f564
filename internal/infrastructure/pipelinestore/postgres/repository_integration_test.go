//go:build integration

package postgres_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/duragraph/dataflow/internal/domain/pipeline"
	"github.com/duragraph/dataflow/internal/infrastructure/pipelinestore/postgres"
)

// startPostgres brings up a disposable Postgres container and returns the
// Config this package's pool/migrator need to reach it.
func startPostgres(t *testing.T) postgres.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dataflow_test"),
		tcpostgres.WithUsername("dataflow"),
		tcpostgres.WithPassword("dataflow"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	u, err := url.Parse(connStr)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	pass, _ := u.User.Password()

	return postgres.Config{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: pass,
		Database: "dataflow_test",
		SSLMode:  "disable",
	}
}

func TestRepository_SaveFindByID(t *testing.T) {
	cfg := startPostgres(t)
	require.NoError(t, postgres.Migrate(cfg))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg)
	require.NoError(t, err)
	defer postgres.Close(pool)

	repo := postgres.NewRepository(pool, postgres.NewEventStore(pool))

	def, err := pipeline.New("ingest", "v1",
		[]pipeline.NodeSpec{{Name: "src", Kind: "cron_source", Config: map[string]interface{}{"spec": "@every 1m"}}},
		nil, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, def))

	found, err := repo.FindByID(ctx, def.ID())
	require.NoError(t, err)
	require.Equal(t, def.Name(), found.Name())
	require.Equal(t, def.Version(), found.Version())
	require.Len(t, found.Nodes(), 1)
	require.Equal(t, "cron_source", found.Nodes()[0].Kind)
}
