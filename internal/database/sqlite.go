package database

import (
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func sqliteDialector(dsn string) gorm.Dialector {
	if dsn == "" {
		dsn = "emlak.db"
	}
	return sqlite.Open(dsn)
}

// OpenSQLite opens a local SQLite store with the schema applied. The probe
// command and tests use it; ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*Store, error) {
	db, err := gorm.Open(sqliteDialector(path), &gorm.Config{
		Logger:         newGormLogger(nil, "silent"),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" a single database and serializes writers
	sqlDB.SetMaxOpenConns(1)
	s := New(db)
	if err := s.InitSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func sqliteDuplicate(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
