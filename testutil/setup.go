package testutil

import (
	"testing"

	"github.com/meeplemeet/server/cache"
	"github.com/meeplemeet/server/config"
	dbadapter "github.com/meeplemeet/server/db"
	"github.com/meeplemeet/server/model"
	"github.com/meeplemeet/server/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.Config{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// SetupTestStore creates a gorm-backed document store over an in-memory DB.
func SetupTestStore(t *testing.T) store.Client {
	t.Helper()
	db := SetupTestDB(t)
	_, ps := SetupTestCache(t)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err, "SetupTestStore: logger")
	return store.NewGormStore(db, ps, logger)
}
