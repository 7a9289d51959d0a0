// Package database is the relational store: listings with change detection
// and price history, scrape sessions, the failed-page audit trail and the
// price analytics queries.
package database

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/models"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("record not found")

// Store wraps a gorm connection
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the database named by cfg
func Open(cfg config.DatabaseConfig, log *slog.Logger) (*Store, error) {
	var (
		dialector gorm.Dialector
		err       error
	)
	switch cfg.Type {
	case "mysql":
		dialector, err = mysqlDialector(cfg.DSN)
	case "postgres":
		dialector, err = postgresDialector(cfg.DSN)
	case "sqlite":
		dialector = sqliteDialector(cfg.DSN)
	default:
		err = fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(log, cfg.LogLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Type, err)
	}
	return New(db), nil
}

// New wraps an existing gorm connection
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB returns the underlying gorm.DB instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (s *Store) InitSchema() error {
	return s.db.AutoMigrate(
		&models.Location{},
		&models.ScrapeSession{},
		&models.Listing{},
		&models.PriceHistory{},
		&models.FailedPage{},
		&models.User{},
		&models.ScrapeJob{},
	)
}

func newGormLogger(log *slog.Logger, level string) logger.Interface {
	lvl := logger.Warn
	switch strings.ToLower(level) {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info", "debug":
		lvl = logger.Info
	}
	if log == nil {
		return logger.Default.LogMode(lvl)
	}
	return logger.New(gormWriter{log.With("component", "gorm")}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

// gormWriter routes gorm's printf-style output into slog
type gormWriter struct {
	log *slog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// counters increments session counter columns
func counters(tx *gorm.DB, sessionID uint, deltas map[string]int) error {
	if sessionID == 0 {
		return nil
	}
	updates := make(map[string]interface{}, len(deltas))
	for col, d := range deltas {
		updates[col] = gorm.Expr(col+" + ?", d)
	}
	return tx.Model(&models.ScrapeSession{}).Where("id = ?", sessionID).UpdateColumns(updates).Error
}
