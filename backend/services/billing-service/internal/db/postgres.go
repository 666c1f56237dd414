package db

import (
	"database/sql"

	libdb "mvpbackend/backend/libs/db"
)

// NewPostgres returns shared DB connection.
func NewPostgres(dsn string) (*sql.DB, error) {
	return libdb.NewPostgresDB(dsn)
}
