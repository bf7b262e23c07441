package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/yumetose/wardrobe/cache"
	"github.com/yumetose/wardrobe/config"
	"github.com/yumetose/wardrobe/db/sqlite"
	"github.com/yumetose/wardrobe/model"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate.
// Each call gets its own database so parallel tests never share state.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sqlite.Open(dsn)
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// SetupWardrobeConfig returns a WardrobeConfig with the standard slot set.
func SetupWardrobeConfig() config.WardrobeConfig {
	return config.WardrobeConfig{
		DefaultSlots:  config.DefaultSlotIDs,
		KindOrder:     []string{"Clothing", "Accessory"},
		SummaryPrefix: "summary",
	}
}
