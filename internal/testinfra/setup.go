// Package testinfra starts throwaway backing services for integration tests.
// Every helper skips under -short and removes its container when the test
// ends.
package testinfra

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"connectivity/pkg/migrations"
)

const (
	PostgresImage = "postgres:15"
	MongoImage    = "mongo:6"
	RedisImage    = "redis:8.4.0-alpine"

	readyTimeout = 10 * time.Second
	testDatabase = "connectivity_test"
)

func requireContainers(t *testing.T) context.Context {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}
	return context.Background()
}

func readyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, readyTimeout)
}

// Postgres returns a connection to a fresh database with every migration
// applied.
func Postgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := requireContainers(t)

	ctr, err := postgresmodule.Run(ctx, PostgresImage,
		postgresmodule.WithDatabase(testDatabase),
		postgresmodule.WithUsername("connectivity"),
		postgresmodule.WithPassword("connectivity"),
		postgresmodule.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pingCtx, cancel := readyContext(ctx)
	defer cancel()
	require.NoError(t, db.PingContext(pingCtx), "ping postgres")
	require.NoError(t, migrations.MigratePostgres(db), "migrate postgres")
	return db
}

// Mongo returns a database whose outcome collection is already set up.
func Mongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := requireContainers(t)

	ctr, err := mongodb.Run(ctx, MongoImage)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start mongo")

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	pingCtx, cancel := readyContext(ctx)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx, nil), "ping mongo")

	db := client.Database(testDatabase)
	require.NoError(t, migrations.EnsureMongoOutcomes(ctx, db), "prepare mongo")
	return db
}

func Redis(t *testing.T) *redisclient.Client {
	t.Helper()
	ctx := requireContainers(t)

	ctr, err := redismodule.Run(ctx, RedisImage)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start redis")

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redisclient.ParseURL(uri)
	require.NoError(t, err)

	client := redisclient.NewClient(opt)
	t.Cleanup(func() { client.Close() })

	pingCtx, cancel := readyContext(ctx)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx).Err(), "ping redis")
	return client
}
