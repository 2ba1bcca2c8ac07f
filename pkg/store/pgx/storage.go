// Package pgx implements GraphStorage on PostgreSQL. All multi-row writes
// run inside a single transaction, and writes that lose a uniqueness race
// surface as store.ErrConflict so callers (or the built-in retry) can
// re-run them against the winning writer's committed state.
package pgx

import (
	"context"
	"errors"

	"github.com/openfilings/relgraph/backend/pkg/resolve"
	"github.com/openfilings/relgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// conflictRetries bounds how often a transactional write is re-run after
// losing a uniqueness race before the conflict is returned to the caller.
const conflictRetries = 3

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements the GraphStorage interface on PostgreSQL.
type GraphDBStorage struct {
	conn   pgxIConn
	policy resolve.Policy
	merge  store.MergePolicy
}

var _ store.GraphStorage = (*GraphDBStorage)(nil)

type GraphDBStorageOption func(*GraphDBStorage)

func WithPolicy(p resolve.Policy) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.policy = p
	}
}

func WithMergePolicy(p store.MergePolicy) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.merge = p
	}
}

// NewGraphDBStorageWithConnection creates a GraphDBStorage over an existing
// connection or pool.
func NewGraphDBStorageWithConnection(conn pgxIConn, opts ...GraphDBStorageOption) *GraphDBStorage {
	s := &GraphDBStorage{
		conn:   conn,
		policy: resolve.DefaultPolicy(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// inTx runs fn inside a transaction, translating unique violations into
// store.ErrConflict.
func (s *GraphDBStorage) inTx(ctx context.Context, fn func(tx pgxv5.Tx) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

// inTxRetry re-runs fn in a fresh transaction after a conflict. The
// re-run observes the winning writer's row and converges.
func (s *GraphDBStorage) inTxRetry(ctx context.Context, fn func(tx pgxv5.Tx) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = s.inTx(ctx, fn)
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
