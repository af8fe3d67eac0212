package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/secmaster/internal/config"
)

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	return &config.Config{
		VersionStore: config.VersionStoreConfig{
			Driver:     config.DriverSQLite,
			Table:      "security_master",
			SQLitePath: filepath.Join(t.TempDir(), "versions.db"),
		},
		Redis: config.RedisConfig{
			Addr:        redisAddr,
			DialTimeout: time.Second,
		},
		Pipeline: config.PipelineConfig{InputDir: t.TempDir(), BatchSize: 10},
	}
}

func TestOpen_SQLite(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	app, err := Open(ctx, testConfig(t, mr.Addr()))
	require.NoError(t, err)
	defer app.Close()

	assert.NoError(t, app.Service.Health(ctx))
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:1")
	cfg.VersionStore.Driver = "mysql"

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown version store driver "mysql"`)
}

func TestOpen_CacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), testConfig(t, addr))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect snapshot cache")
}
