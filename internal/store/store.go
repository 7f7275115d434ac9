// Package store persists the dealership collections (cars, images, activities,
// users, inquiries, settings) in PostgreSQL or SQLite through sqlx.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqliteDriverName is go-sqlite3 with LOWER replaced by strings.ToLower, so
// case-insensitive filters agree with CarFilter.Match beyond ASCII.
const sqliteDriverName = "sqlite3_showroom"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", unicodeLower, true)
		},
	})
	sqlx.BindDriver(sqliteDriverName, sqlx.QUESTION)
}

func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		if s == nil {
			return nil
		}
		return strings.ToLower(string(s))
	default:
		return v
	}
}

// Config holds database connection settings
type Config struct {
	// Driver is either "postgres" or "sqlite"
	Driver string

	// DSN is the driver-specific connection string
	DSN string

	// MaxOpenConns is the maximum number of open connections (ignored for SQLite)
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections (ignored for SQLite)
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a local SQLite configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "showroom.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// Store is the entry point to all collections. Query methods are promoted from
// the embedded queries value and run outside a transaction; use WithTx to group
// writes.
type Store struct {
	queries
	db     *sqlx.DB
	driver string
}

// Tx is a transaction-scoped view of the store
type Tx struct {
	queries
	tx *sqlx.Tx
}

// queries holds the query methods shared by Store and Tx
type queries struct {
	ext sqlx.ExtContext
}

// Open connects to the configured database and verifies the connection.
// Migrations are not applied; call Migrate.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driverName, dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite allows a single writer; one connection also keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", cfg.Driver, err)
	}

	return New(db, cfg.Driver), nil
}

// New wraps an existing connection. driver must be DriverPostgres or DriverSQLite.
func New(db *sqlx.DB, driver string) *Store {
	return &Store{
		queries: queries{ext: db},
		db:      db,
		driver:  driver,
	}
}

// Driver returns the configured driver name
func (s *Store) Driver() string {
	return s.driver
}

// DB returns the underlying connection pool
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is rolled back if fn
// returns an error or panics, and committed otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{queries: queries{ext: sqlTx}, tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// MigrationState describes one migration and whether it has been applied
type MigrationState struct {
	Version int64
	Name    string
	Applied bool
}

// goose keeps its dialect and filesystem in package state
var gooseMu sync.Mutex

// Migrate applies all pending migrations and returns the resulting schema version
func (s *Store) Migrate(ctx context.Context) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := s.useDialect()
	if err != nil {
		return 0, err
	}
	if err := goose.UpContext(ctx, s.db.DB, dir); err != nil {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}
	return s.version(ctx)
}

// MigrateDown rolls back the most recent migration and returns the resulting schema version
func (s *Store) MigrateDown(ctx context.Context) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := s.useDialect()
	if err != nil {
		return 0, err
	}
	if err := goose.DownContext(ctx, s.db.DB, dir); err != nil {
		return 0, fmt.Errorf("rolling back migration: %w", err)
	}
	return s.version(ctx)
}

// MigrationStatus lists every embedded migration with its state
func (s *Store) MigrationStatus(ctx context.Context) ([]MigrationState, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := s.useDialect()
	if err != nil {
		return nil, err
	}

	current, err := s.version(ctx)
	if err != nil {
		return nil, err
	}

	migrations, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collecting migrations: %w", err)
	}

	states := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		states = append(states, MigrationState{
			Version: m.Version,
			Name:    path.Base(m.Source),
			Applied: m.Version <= current,
		})
	}
	return states, nil
}

func (s *Store) version(ctx context.Context) (int64, error) {
	v, err := goose.GetDBVersionContext(ctx, s.db.DB)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func (s *Store) useDialect() (string, error) {
	dialect, dir := goose.DialectSQLite3, "migrations/sqlite"
	if s.driver == DriverPostgres {
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(string(dialect)); err != nil {
		return "", fmt.Errorf("setting migration dialect: %w", err)
	}
	return dir, nil
}

func driverDSN(cfg Config) (string, string, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return "pgx", cfg.DSN, nil
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		return sqliteDriverName, withSQLiteOptions(dsn), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func withSQLiteOptions(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000&_loc=UTC"
}

// rebind converts '?' placeholders to the dialect of the underlying connection
func (q queries) rebind(query string) string {
	return q.ext.Rebind(query)
}

// exec runs a statement and maps driver errors
func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.ext.ExecContext(ctx, q.rebind(query), args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return res, nil
}

// execOne runs a statement that must affect exactly one row
func (q queries) execOne(ctx context.Context, query string, args ...any) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return ConvertDBError(sqlx.GetContext(ctx, q.ext, dest, q.rebind(query), args...))
}

func (q queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return ConvertDBError(sqlx.SelectContext(ctx, q.ext, dest, q.rebind(query), args...))
}
