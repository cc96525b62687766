package sessions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/saaga0h/jeeves-savings/internal/savings"
	"github.com/saaga0h/jeeves-savings/pkg/postgres"
)

const upsertQuery = `
	INSERT INTO saving_sessions (id, start_time, end_time, octopoints, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (id) DO UPDATE SET
		start_time = EXCLUDED.start_time,
		end_time   = EXCLUDED.end_time,
		octopoints = EXCLUDED.octopoints,
		updated_at = NOW()
`

const schema = `
	CREATE TABLE IF NOT EXISTS saving_sessions (
		id          TEXT PRIMARY KEY,
		start_time  TIMESTAMPTZ NOT NULL,
		end_time    TIMESTAMPTZ NOT NULL,
		octopoints  INTEGER NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_time > start_time)
	)
`

// PostgresStore persists sessions in the saving_sessions table
type PostgresStore struct {
	pg postgres.Client
}

// NewPostgresStore creates a store on a connected client
func NewPostgresStore(pg postgres.Client) *PostgresStore {
	return &PostgresStore{pg: pg}
}

var _ Store = (*PostgresStore)(nil)

// EnsureSchema creates the saving_sessions table if needed
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pg.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create saving_sessions table: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]savings.Event, error) {
	query := `
		SELECT id, start_time, end_time, octopoints
		FROM saving_sessions
		ORDER BY start_time ASC, id ASC
	`

	rows, err := s.pg.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var events []savings.Event
	for rows.Next() {
		var e savings.Event
		var points sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Start, &e.End, &points); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		e.OctoPoints = int(points.Int64)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return events, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, event savings.Event) error {
	if err := validate(event); err != nil {
		return err
	}

	if _, err := s.pg.Exec(ctx, upsertQuery, event.ID, event.Start, event.End, event.OctoPoints); err != nil {
		return fmt.Errorf("failed to upsert saving session %s: %w", event.ID, err)
	}
	return nil
}

// UpsertAll writes every event in a single transaction
func (s *PostgresStore) UpsertAll(ctx context.Context, events []savings.Event) error {
	for _, event := range events {
		if err := validate(event); err != nil {
			return err
		}
	}

	return s.pg.Transaction(ctx, func(tx *sql.Tx) error {
		for _, event := range events {
			if _, err := tx.ExecContext(ctx, upsertQuery, event.ID, event.Start, event.End, event.OctoPoints); err != nil {
				return fmt.Errorf("failed to upsert saving session %s: %w", event.ID, err)
			}
		}
		return nil
	})
}
