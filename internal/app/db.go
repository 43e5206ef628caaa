package app

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/taskforge/orchestrator/internal/config"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// openDB opens the gorm connection named by cfg.DatabaseDriver, grounded on
// the teacher's NewPostgresService (same GORM logger config: ignore "record
// not found" since the Scheduler's context/state reads hit that constantly).
func openDB(cfg config.Config, baseLog *logger.Logger) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	switch cfg.DatabaseDriver {
	case "postgres":
		baseLog.Info("Connecting to Postgres...")
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLog,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			baseLog.Warn("Failed to enable uuid-ossp extension", "error", err)
		}
		return db, nil
	case "sqlite", "":
		baseLog.Info("Opening sqlite database", "dsn", cfg.DatabaseDSN)
		db, err := gorm.Open(sqlite.Open(cfg.DatabaseDSN), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLog,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database.driver %q", cfg.DatabaseDriver)
	}
}
