package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mevdschee/tqloader/replica"
)

// Options selects the database the store connects to
type Options struct {
	Driver   string   // sqlite3, postgres or mysql
	DSN      string   // Primary DSN; empty sqlite3 DSN uses a temporary directory
	Replicas []string // Read replica DSNs
}

// Store provides the facility and organization tables.
// Writes go to the primary, reads are spread over healthy replicas.
type Store struct {
	pool    *replica.Pool
	dialect Dialect
	tempDir string
	logger  *zap.Logger
}

// Open connects to the primary and all replicas.
//
// For sqlite3 the connection is configured with:
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// When no sqlite3 DSN is given the database lives in a temporary directory
// that is removed by Close.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := normalizeDriver(opts.Driver)
	switch driver {
	case "sqlite3", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}

	s := &Store{
		dialect: DialectFor(driver),
		logger:  logger,
	}

	dsn := opts.DSN
	if dsn == "" && driver == "sqlite3" {
		dir, err := os.MkdirTemp("", "tqloader-")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
		s.tempDir = dir
		dsn = filepath.Join(dir, "test.db")
	}

	primary, err := openDB(ctx, driver, dsn)
	if err != nil {
		s.removeTempDir()
		return nil, fmt.Errorf("failed to open primary: %w", err)
	}

	var replicas []replica.Member
	for i, replicaDSN := range opts.Replicas {
		db, err := openDB(ctx, driver, replicaDSN)
		if err != nil {
			closeErr := closeAll(append(replicas, replica.Member{Name: "primary", DB: primary}))
			s.removeTempDir()
			return nil, multierror.Append(fmt.Errorf("failed to open replica%d: %w", i+1, err), closeErr).ErrorOrNil()
		}
		replicas = append(replicas, replica.Member{Name: "replica" + strconv.Itoa(i+1), DB: db})
	}

	s.pool = replica.NewPool(replica.Member{Name: "primary", DB: primary}, replicas, logger)
	logger.Debug("store opened",
		zap.String("driver", driver),
		zap.Int("replicas", len(replicas)),
		zap.Bool("temporary", s.tempDir != ""))
	return s, nil
}

// Pool returns the replica pool backing the store
func (s *Store) Pool() *replica.Pool {
	return s.pool
}

// Dialect returns the SQL dialect of the store
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes all database handles and removes the temporary directory
func (s *Store) Close() error {
	var result error
	if err := closeAll(s.pool.Members()); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.removeTempDir(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

func (s *Store) removeTempDir() error {
	if s.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(s.tempDir); err != nil {
		return fmt.Errorf("failed to remove temp directory: %w", err)
	}
	return nil
}

func openDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// applyPragmas sets required SQLite configuration
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func closeAll(members []replica.Member) error {
	var result error
	for _, m := range members {
		if err := m.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", m.Name, err))
		}
	}
	return result
}
