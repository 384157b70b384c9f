package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vallemarketing/valle360-teste-sub009/config"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// Connections holds the write pool and the optional read replica
type Connections struct {
	DB         *gorm.DB
	ReadOnlyDB *gorm.DB
}

// Connect opens the write database and, when configured, the read-only
// replica. Unique violations surface as gorm.ErrDuplicatedKey.
func Connect(cfg config.DatabaseConfig) (*Connections, error) {
	db, err := open(cfg.DSN, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to write database")
	}
	conns := &Connections{DB: db}

	if cfg.ReadOnlyDSN != "" {
		readOnlyDB, err := open(cfg.ReadOnlyDSN, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to read-only database")
		}
		conns.ReadOnlyDB = readOnlyDB
	}

	if cfg.AutoMigrate {
		if err := models.SetupModels(db); err != nil {
			return nil, err
		}
	}

	return conns, nil
}

func open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get DB instance")
	}

	sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 10))
	sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 50))
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	sqlDB.SetConnMaxLifetime(lifetime)

	return db, nil
}

// Ping checks the write database
func (c *Connections) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes every pool
func (c *Connections) Close() error {
	for _, db := range []*gorm.DB{c.DB, c.ReadOnlyDB} {
		if db == nil {
			continue
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.Close(); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
