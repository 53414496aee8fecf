package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"billdesk/internal/store"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store persists entities through sqlx on either SQLite (modernc, no cgo) or
// PostgreSQL (pgx stdlib). Queries are written with '?' placeholders and
// rebound per driver.
type Store struct {
	*queries
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open connects, applies the schema and returns a ready store. driver is
// "sqlite" or "postgres".
func Open(ctx context.Context, driver string, dsn string) (*Store, error) {
	driverName, err := driverFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", store.ErrStorage, driver, err)
	}

	if driverName == DriverSQLite {
		// A single connection serialises writers and keeps ":memory:" databases alive.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(4)
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", store.ErrStorage, driver, err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{queries: &queries{ext: db}, db: db}, nil
}

func driverFor(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", name)
}

// SQLiteDSN builds a modernc DSN for path with foreign keys on and a fixed
// time format so stored timestamps compare correctly as text.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one database transaction. The transaction commits only
// if fn returns nil; any error or panic rolls back every write.
func (s *Store) WithTx(ctx context.Context, fn store.TxFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", store.ErrStorage, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, &queries{ext: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx: %w", store.ErrStorage, err)
	}
	return nil
}

// queries implements store.Tx over either the pool or an open transaction.
type queries struct {
	ext sqlx.ExtContext
}

var _ store.Tx = (*queries)(nil)

func (q *queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row.
func (q *queries) execOne(ctx context.Context, op string, kind string, id any, query string, args ...any) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func (q *queries) insertReturningID(ctx context.Context, op string, query string, args ...any) (int64, error) {
	var id int64
	if err := q.ext.QueryRowxContext(ctx, q.ext.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, wrapErr(op, err)
	}
	return id, nil
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s: %w", store.ErrConsistency, op, err)
	}
	return fmt.Errorf("%w: %s: %w", store.ErrStorage, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// rangeClause renders the time filter for column and returns its args.
func rangeClause(column string, window store.Range) (string, []any) {
	if window.From.IsZero() {
		return column + " < ?", []any{dbTime(window.To)}
	}
	return column + " >= ? AND " + column + " < ?", []any{dbTime(window.From), dbTime(window.To)}
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
