// Package storage is the SQLite-backed persistence layer: three bounded
// connection pools over one database file, a migration runner, and the
// repository implementations that map aggregates to rows with
// compare-and-swap updates.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// PoolConfig sizes the three pools opened against the same database file.
type PoolConfig struct {
	// Path is the SQLite file.
	Path string
	// ReadCapacity is the read pool's SetMaxOpenConns, normally sized by
	// CalculateReadPoolCapacity.
	ReadCapacity int
}

// Pool is one bounded connection pool opened with a fixed durability
// mode. database/sql's own pool blocks callers once MaxOpenConns
// connections are checked out, which is the idiomatic Go equivalent of a
// counting semaphore guarding pool acquisition.
type Pool struct {
	db *sql.DB
}

// openPool opens a *sql.DB against path with the given SQLite pragmas and
// caps it at capacity open connections.
func openPool(path string, synchronousFull bool, capacity int) (*Pool, error) {
	synchronous := "NORMAL"
	if synchronousFull {
		synchronous = "FULL"
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=%s&_foreign_keys=on", path, synchronous)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite pool: %w", err)
	}
	db.SetMaxOpenConns(capacity)
	db.SetMaxIdleConns(capacity)
	return &Pool{db: db}, nil
}

func (p *Pool) Close() error {
	return p.db.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// BeginTx begins a transaction in the mode appropriate for readOnly: a
// deferred read, or an immediate write. SQLite has no first-class
// read-only transaction flag reachable through database/sql, so the
// distinction is carried by BEGIN statement choice.
func (p *Pool) BeginTx(ctx context.Context, readOnly bool) (*Transaction, error) {
	begin := "BEGIN IMMEDIATE"
	if readOnly {
		begin = "BEGIN DEFERRED"
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, begin); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", begin, err)
	}
	return &Transaction{conn: conn}, nil
}

// Transaction wraps a single connection between BEGIN and COMMIT/ROLLBACK.
// Use WithTransaction to run one; it guarantees the transaction is always
// resolved one way or the other.
type Transaction struct {
	conn *sql.Conn
}

func (t *Transaction) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *Transaction) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *Transaction) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

func (t *Transaction) commit(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, "COMMIT")
	t.conn.Close()
	return err
}

func (t *Transaction) rollback(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, "ROLLBACK")
	t.conn.Close()
	return err
}

// Databases bundles the three pools the rest of the storage layer draws
// transactions from.
type Databases struct {
	Read       *Pool
	AsyncWrite *Pool
	SyncWrite  *Pool
}

// Open opens the three pools against the same SQLite file and runs
// migrations.
func Open(ctx context.Context, cfg PoolConfig) (*Databases, error) {
	read, err := openPool(cfg.Path, false, cfg.ReadCapacity)
	if err != nil {
		return nil, err
	}
	asyncWrite, err := openPool(cfg.Path, false, 1)
	if err != nil {
		return nil, err
	}
	syncWrite, err := openPool(cfg.Path, true, 1)
	if err != nil {
		return nil, err
	}
	dbs := &Databases{Read: read, AsyncWrite: asyncWrite, SyncWrite: syncWrite}
	if err := dbs.migrate(ctx); err != nil {
		dbs.Close()
		return nil, err
	}
	return dbs, nil
}

func (d *Databases) Close() error {
	var firstErr error
	for _, p := range []*Pool{d.Read, d.AsyncWrite, d.SyncWrite} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithTransaction runs fn inside a transaction on pool, read-only or not.
// fn's returned error triggers a rollback; a nil error commits.
func WithTransaction(ctx context.Context, pool *Pool, readOnly bool, fn func(ctx context.Context, tx *Transaction) error) error {
	tx, err := pool.BeginTx(ctx, readOnly)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.commit(ctx)
}

// CalculateReadPoolCapacity sizes the read pool so that every background
// worker (execution, schedule, cleanup) plus the execution worker's
// goroutine pool can hold a read connection concurrently, with a little
// headroom for ad hoc reads from the facade.
func CalculateReadPoolCapacity(executionWorkerThreads int) int {
	const executionWorker = 1
	const scheduleWorker = 1
	const cleanupWorker = 1
	const headroom = 1
	return executionWorker + executionWorkerThreads + scheduleWorker + cleanupWorker + headroom
}
