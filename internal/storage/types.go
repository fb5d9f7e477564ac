package storage

import (
	"errors"
	"time"
)

var ErrUnknownDriver = errors.New("storage: unknown driver")

// Config configures the task repository.
//
// Driver values:
//   - "sqlite": SQLite file at Path (pure Go driver)
//   - "postgres": PostgreSQL at DSN via pgx
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
	MaxConns    int           // postgres only; 0 means 10
}
