package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/filex"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/migrations"
	"github.com/dmitrijs2005/accountkeeper/internal/repositories/accounts"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLRepositoryManager runs units of work in database/sql transactions,
// retrying serialization failures and busy errors.
type SQLRepositoryManager struct {
	db      *sql.DB
	dialect string
	dir     string
	txOpts  *sql.TxOptions
	policy  dbx.RetryPolicy
	newRepo func(dbx.DBTX) accounts.Repository
	logger  logging.Logger
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// NewPostgresRepositoryManager opens a pgx-backed pool. Transactions run at
// SERIALIZABLE.
func NewPostgresRepositoryManager(ctx context.Context, dsn string) (*SQLRepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return newPostgresManager(db), nil
}

func newPostgresManager(db *sql.DB) *SQLRepositoryManager {
	return &SQLRepositoryManager{
		db:      db,
		dialect: "pgx",
		dir:     migrations.PostgresDir,
		txOpts:  &sql.TxOptions{Isolation: sql.LevelSerializable},
		policy:  dbx.DefaultRetryPolicy,
		newRepo: func(tx dbx.DBTX) accounts.Repository { return accounts.NewPostgresRepository(tx) },
		logger:  logging.Nop(),
	}
}

// NewSQLiteRepositoryManager opens the database file at path, creating its
// directory when missing. A path that already starts with "file:" is used as
// a DSN as is.
func NewSQLiteRepositoryManager(ctx context.Context, path string) (*SQLRepositoryManager, error) {
	if !strings.HasPrefix(path, "file:") {
		if _, err := filex.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("db dir error: %w", err)
		}
	}
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	// one writer; transactions on other connections would only wait on the lock
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return newSQLiteManager(db), nil
}

func newSQLiteManager(db *sql.DB) *SQLRepositoryManager {
	return &SQLRepositoryManager{
		db:      db,
		dialect: "sqlite3",
		dir:     migrations.SQLiteDir,
		policy:  dbx.DefaultRetryPolicy,
		newRepo: func(tx dbx.DBTX) accounts.Repository { return accounts.NewSQLiteRepository(tx) },
		logger:  logging.Nop(),
	}
}

// SQLiteDSN turns a file path into a DSN with foreign keys enforced, a busy
// timeout and write-locking transactions.
func SQLiteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// SetLogger sets the logger that receives migration progress.
func (m *SQLRepositoryManager) SetLogger(logger logging.Logger) {
	m.logger = logger.With("component", "migrations")
}

// RunMigrations applies the embedded migrations for the manager's dialect.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetLogger(gooseLogger{ctx: ctx, logger: m.logger})
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.dialect); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, m.dir)
}

func (m *SQLRepositoryManager) WithinTx(ctx context.Context, fn TxFunc) error {
	return dbx.WithTxRetry(ctx, m.db, m.txOpts, m.policy, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, m.newRepo(tx))
	})
}

func (m *SQLRepositoryManager) Close() error {
	return m.db.Close()
}

// gooseLogger adapts logging.Logger to goose.Logger.
type gooseLogger struct {
	ctx    context.Context
	logger logging.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}
