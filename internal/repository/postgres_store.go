package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/lead-router/internal/domain"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx opens a savepoint.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresStore struct {
	pool        *pgxpool.Pool
	db          DBTX
	inTx        bool
	lockTimeout time.Duration
}

// NewPostgresStore builds a Store backed by the pgx pool. A positive lockTimeout is
// applied to every transaction so a stuck cursor row surfaces as a retryable error.
func NewPostgresStore(pool *pgxpool.Pool, lockTimeout time.Duration) Store {
	return &postgresStore{pool: pool, db: pool, lockTimeout: lockTimeout}
}

func (s *postgresStore) Agents() AgentRepository           { return &agentRepository{db: s.db} }
func (s *postgresStore) Leads() LeadRepository             { return &leadRepository{db: s.db} }
func (s *postgresStore) Assignments() AssignmentRepository { return &assignmentRepository{db: s.db} }
func (s *postgresStore) Cursors() CursorRepository         { return &cursorRepository{db: s.db} }

func (s *postgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if s.pool == nil {
		return fmt.Errorf("%w: postgres pool not configured", ErrTransient)
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if s.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return fn(&postgresStore{pool: s.pool, db: tx, inTx: true, lockTimeout: s.lockTimeout})
	})
	return classify(err)
}

// classify maps driver errors onto the repository sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrDuplicate) || errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "40001", "40P01", "55P03", "57014", "57P01":
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

func sourcesToStrings(sources []domain.LeadSource) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, string(s))
	}
	return out
}

func stringsToSources(values []string) []domain.LeadSource {
	out := make([]domain.LeadSource, 0, len(values))
	for _, v := range values {
		out = append(out, domain.LeadSource(v))
	}
	return out
}
