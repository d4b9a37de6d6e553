package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/m-mizutani/goerr/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

// Dialect selects the SQL flavor and driver
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Validate checks the dialect is supported
func (d Dialect) Validate() error {
	switch d {
	case DialectPostgres, DialectSQLite:
		return nil
	}
	return goerr.New("unsupported SQL dialect", goerr.V("dialect", string(d)))
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLiteDSN builds a DSN for a database file with foreign keys on, a busy timeout and write
// transactions that take the lock at BEGIN.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Store is a database/sql backed repository for PostgreSQL and SQLite
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ interfaces.Repository = &Store{}

// Open connects to the database. Call Migrate before first use.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	if err := dialect.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to open database", goerr.V("dialect", dialect))
	}
	if dialect == DialectSQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY between our own transactions.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, model.WrapPersistence(err, "failed to connect to database", goerr.V("dialect", dialect))
	}

	return &Store{db: db, dialect: dialect}, nil
}

// DB exposes the underlying handle for migrations and health checks
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the configured SQL flavor
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close database")
	}
	return nil
}

func (s *Store) Case() interfaces.CaseRepository {
	return &caseRepository{c: s.conn(s.db)}
}

func (s *Store) Incident() interfaces.IncidentRepository {
	return &incidentRepository{c: s.conn(s.db)}
}

func (s *Store) Assignment() interfaces.AssignmentRepository {
	return &assignmentRepository{c: s.conn(s.db)}
}

func (s *Store) Note() interfaces.NoteRepository {
	return &noteRepository{c: s.conn(s.db)}
}

func (s *Store) Audit() interfaces.AuditRepository {
	return &auditRepository{c: s.conn(s.db)}
}

func (s *Store) BotExecution() interfaces.BotExecutionRepository {
	return &botExecutionRepository{c: s.conn(s.db)}
}

// RunInTx runs fn inside a database transaction and commits when fn succeeds
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return goerr.Wrap(ctxErr, "transaction not started")
		}
		return model.WrapPersistence(err, "failed to begin transaction")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.From(ctx).Warn("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(ctx, &sqlTxAdapter{c: s.conn(sqlTx), dialect: s.dialect}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return goerr.Wrap(ctxErr, "transaction aborted before commit")
		}
		return mapError(err, "failed to commit transaction")
	}
	committed = true
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn rewrites ? placeholders for the dialect
type conn struct {
	q       querier
	dialect Dialect
}

func (s *Store) conn(q querier) conn {
	return conn{q: q, dialect: s.dialect}
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, rebind(c.dialect, query), args...)
}

// rebind turns ? placeholders into $1, $2, ... for PostgreSQL. Queries in this package never contain
// a literal question mark.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_BUSY
	}
	return false
}

// mapError classifies a driver error into the engine's error kinds
func mapError(err error, msg string, opts ...goerr.Option) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return goerr.Wrap(model.ErrNotFound, msg, opts...)
	case isUniqueViolation(err), isSerializationFailure(err):
		return goerr.Wrap(errors.Join(model.ErrConflict, err), msg, opts...)
	default:
		return model.WrapPersistence(err, msg, opts...)
	}
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}
