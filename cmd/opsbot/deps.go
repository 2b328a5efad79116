package main

import (
	"fmt"

	"github.com/fiberline/opsbot/internal/audit"
	"github.com/fiberline/opsbot/internal/config"
	"github.com/fiberline/opsbot/internal/db"
	"github.com/fiberline/opsbot/internal/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// newLogger builds the process logger from the log section of the config.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// storage bundles the database handle with the stores built on it.
type storage struct {
	db    *gorm.DB
	store *session.GormStore
	audit *audit.Log
}

// openStorage connects to the configured database and migrates the schema.
func openStorage(cfg *config.Config) (*storage, error) {
	gormDB, err := db.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		db.Close(gormDB)
		return nil, err
	}
	store, err := session.NewGormStore(session.GormStoreOpts{DB: gormDB})
	if err != nil {
		db.Close(gormDB)
		return nil, err
	}
	auditLog, err := audit.NewLog(gormDB, nil)
	if err != nil {
		db.Close(gormDB)
		return nil, err
	}
	return &storage{db: gormDB, store: store, audit: auditLog}, nil
}

func (s *storage) Close() error {
	return db.Close(s.db)
}
