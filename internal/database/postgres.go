package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// postgresDialector opens dsn with lib/pq and hands the pool to gorm
func postgresDialector(dsn string) (gorm.Dialector, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	return postgres.New(postgres.Config{Conn: conn}), nil
}

// postgresDuplicate reports unique_violation
func postgresDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
