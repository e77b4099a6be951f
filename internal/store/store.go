// Package store persists applications, interviews, notifications and the
// event outbox in PostgreSQL.
//
// Every state change is written together with the outbox events it produced
// in one transaction; the relay picks the events up afterwards.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

//go:embed migrations/*.sql
var migrations embed.FS

// psql builds statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the repositories over one pool.
type Store struct {
	pool *pgxpool.Pool

	Jobs          *JobRepo
	Applications  *ApplicationRepo
	Interviews    *InterviewRepo
	Notifications *NotificationRepo
	Outbox        *OutboxRepo
}

// New returns a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:          pool,
		Jobs:          &JobRepo{pool: pool},
		Applications:  &ApplicationRepo{pool: pool},
		Interviews:    &InterviewRepo{pool: pool},
		Notifications: &NotificationRepo{pool: pool},
		Outbox:        &OutboxRepo{pool: pool},
	}
}

// Migrate applies the embedded migrations that have not run yet, in file
// name order.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
		   name       TEXT PRIMARY KEY,
		   applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		 )`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		body, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// stageEvents writes events to the outbox inside the caller's transaction.
func stageEvents(ctx context.Context, q querier, events []notify.Event) error {
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO outbox (id, kind, body) VALUES ($1, $2, $3)`,
			ev.ID, string(ev.Kind), body,
		); err != nil {
			return fmt.Errorf("stage event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// unmarshalJSON decodes a JSONB column; NULL leaves dst untouched.
func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
