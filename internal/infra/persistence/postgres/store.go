// Package postgres provides a Postgres-backed lot store. Every record is a
// row in the lots table; transactions take row locks with SELECT ... FOR
// UPDATE under a bounded lock_timeout and evaluate commit-time rules before
// committing.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lotledger/pkg/domain"
)

// Compile-time contract assertions ensuring the store satisfies the domain interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Transaction     = (*transaction)(nil)
)

const (
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/lotledger?sslmode=disable"
	// DefaultLockTimeout bounds how long a statement waits for a row lock.
	DefaultLockTimeout = 2 * time.Second
)

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithoutMigrations skips applying the embedded migrations on open.
func WithoutMigrations() Option {
	return func(s *Store) { s.migrate = false }
}

// Store persists lots to Postgres.
type Store struct {
	pool        *pgxpool.Pool
	engine      *domain.RulesEngine
	lockTimeout time.Duration
	nowFn       func() time.Time
	migrate     bool
}

// NewStore connects to dsn, applies migrations, and returns a ready store.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewStoreFromPool(pool, engine, opts...)
	if s.migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewStoreFromPool wraps an existing pool. Migrations are not applied.
func NewStoreFromPool(pool *pgxpool.Pool, engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		pool:        pool,
		engine:      engine,
		lockTimeout: DefaultLockTimeout,
		nowFn:       func() time.Time { return time.Now().UTC() },
		migrate:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pool exposes the underlying pool for integration testing hooks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// RulesEngine exposes the configured commit-time rules engine.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// RunInTransaction runs fn inside a READ COMMITTED transaction. Row locks are
// held until commit or rollback. Read errors inside fn are sticky and
// returned here since the view methods cannot report them.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.Result{}, mapError("begin", "", 0, err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := pgTx.Exec(ctx, timeout); err != nil {
		return domain.Result{}, mapError("set lock_timeout", "", 0, err)
	}

	tx := &transaction{store: s, ctx: ctx, tx: pgTx, now: s.nowFn()}
	err = fn(tx)
	if tx.err != nil {
		// A failed read surfaces downstream as a misleading not-found; report
		// the underlying database error instead.
		return domain.Result{}, tx.err
	}
	if err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		if tx.err != nil {
			return domain.Result{}, tx.err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	if err := pgTx.Commit(ctx); err != nil {
		return result, mapError("commit", "", s.lockTimeout, err)
	}
	return result, nil
}

// View runs fn against a read-only repeatable-read snapshot. It takes no locks.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return mapError("begin view", "", 0, err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()
	tx := &transaction{store: s, ctx: ctx, tx: pgTx, now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.err
}
