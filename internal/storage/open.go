package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Dialects understood by Open.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// DefaultLockTable is the table whose lock serializes writers on postgres.
const DefaultLockTable = "idempotency_records"

// Options configures Open.
type Options struct {
	Dialect string
	// Path is the sqlite database file.
	Path string
	// DSN is the postgres connection string.
	DSN          string
	LockTimeout  time.Duration
	MaxOpenConns int
	LockTable    string
	Logger       gormlogger.Interface
}

// Open connects to the configured store and returns an Engine bound to it.
func Open(opts Options) (*Engine, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if opts.LockTable == "" {
		opts.LockTable = DefaultLockTable
	}

	var dialector gorm.Dialector
	switch opts.Dialect {
	case DialectSQLite, "":
		if strings.TrimSpace(opts.Path) == "" {
			return nil, errors.New("storage: sqlite path is required")
		}
		opts.Dialect = DialectSQLite
		dialector = sqlite.Open(sqliteDSN(opts.Path, opts.LockTimeout))
	case DialectPostgres:
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, errors.New("storage: postgres dsn is required")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("storage: unsupported dialect %q", opts.Dialect)
	}

	gcfg := &gorm.Config{
		// Transactions are owned by the Engine; GORM must not open its own.
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}
	if opts.Logger != nil {
		gcfg.Logger = opts.Logger
	} else {
		gcfg.Logger = gormlogger.Discard
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", opts.Dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s store: %w", opts.Dialect, err)
	}

	return &Engine{
		db:          db,
		dialect:     opts.Dialect,
		lockTimeout: opts.LockTimeout,
		lockTable:   opts.LockTable,
		tracer:      otel.Tracer("github.com/imrishuroy/go-exactly-once-orders/internal/storage"),
	}, nil
}

// sqliteDSN appends the per-connection pragmas. busy_timeout bounds how long
// BEGIN IMMEDIATE waits for the write lock.
func sqliteDSN(path string, lockTimeout time.Duration) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", lockTimeout.Milliseconds()),
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(1)",
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}
