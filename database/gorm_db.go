package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/camden-git/fleetinspectbackend/config"
	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/models"
)

// InitGormDB initializes and returns a GORM database instance for the given driver
func InitGormDB(log *logger.Logger, driver, dataSourceName string) (*gorm.DB, error) {
	log = log.With("component", "database", "driver", driver)
	gormLogger := gormlogger.New(
		log,
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	var dialector gorm.Dialector
	switch driver {
	case config.DatabaseDriverPostgres:
		dialector = postgres.Open(dataSourceName)
	case config.DatabaseDriverSQLite, "":
		dialector = sqlite.Open(dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	if driver == config.DatabaseDriverPostgres {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	} else {
		// enable write-ahead Logging for better concurrency
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			log.Warn("Failed to set WAL mode", "error", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Database initialized")
	return db, nil
}

// AutoMigrateModels migrates the inspection pipeline schemas
func AutoMigrateModels(log *logger.Logger, db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.InspectionPhoto{},
		&models.AnalysisResult{},
		&models.VisualAnomaly{},
		&models.MeterReading{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	log.Info("Schema migration completed", "component", "database")
	return nil
}
