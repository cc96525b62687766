package postgres

import (
	"context"
	"database/sql"
)

// Client is the database handle behind the saving_sessions table. The
// sessions package only needs Exec, Query and Transaction; the rest serves
// startup and the health endpoints.
type Client interface {
	// Connect opens the pool and verifies it with a ping
	Connect(ctx context.Context) error

	// Disconnect closes the pool on shutdown
	Disconnect() error

	// Exec runs schema creation and single session upserts
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// Query lists stored sessions; the caller closes the rows
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

	// Transaction runs fn in one transaction, committed only if fn returns
	// nil. A seeded schedule is applied through it so a bad file leaves the
	// table untouched.
	Transaction(ctx context.Context, fn func(*sql.Tx) error) error

	// Ping backs the postgres entry of /health/detailed
	Ping(ctx context.Context) error

	// HealthCheck reports latency and pool usage
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
