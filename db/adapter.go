package db

import (
	"fmt"
	"sync/atomic"

	"github.com/meeplemeet/server/config"
	dbmysql "github.com/meeplemeet/server/db/mysql"
	dbsqlite "github.com/meeplemeet/server/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeMemory = "memory"
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

var memCounter int64

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeMemory:
		// A uniquely named shared-cache in-memory DB: the connection pool
		// shares one database, but every Open gets a fresh one (tests).
		n := atomic.AddInt64(&memCounter, 1)
		return dbsqlite.Open(fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", n))
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
