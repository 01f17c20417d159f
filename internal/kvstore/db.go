package kvstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

var (
	// ErrClosed is returned when using a closed handle.
	ErrClosed = errors.New("kvstore: database closed")
)

// Options configures a database handle.
type Options struct {
	Logger *slog.Logger
	// BusyTimeout is how long a writer waits for the database lock.
	BusyTimeout time.Duration
	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int
}

// Option configures Options.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithBusyTimeout sets the lock wait timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.BusyTimeout = d
	}
}

func defaultOptions() Options {
	return Options{
		Logger:       slog.Default(),
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// DB is a handle to one SQLite database file.
type DB struct {
	sql    *sql.DB
	path   string
	logger *slog.Logger

	refs     atomic.Int32
	closed   atomic.Bool
	registry *Registry

	// mu serializes DDL so concurrent Column calls do not race on CREATE TABLE.
	mu sync.Mutex
}

// Open opens (creating if needed) the database at path. The returned handle
// is not shared; use a Registry to share handles between fields.
func Open(path string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + path + "?" + q.Encode()

	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	sdb.SetMaxOpenConns(o.MaxOpenConns)
	sdb.SetMaxIdleConns(o.MaxOpenConns)

	if err := sdb.Ping(); err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}

	db := &DB{sql: sdb, path: path, logger: o.Logger}
	db.refs.Store(1)
	db.logger.Debug("kvstore opened", "path", path)
	return db, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close releases this reference. The database is closed when the last
// reference is released.
func (d *DB) Close() error {
	if d.registry != nil {
		return d.registry.release(d)
	}
	if d.refs.Add(-1) > 0 {
		return nil
	}
	return d.closeNow()
}

func (d *DB) closeNow() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.logger.Debug("kvstore closed", "path", d.path)
	return d.sql.Close()
}

// Column returns the column family name, creating its table if missing.
func (d *DB) Column(name string) (*Column, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	table := tableName(name)
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (k BLOB PRIMARY KEY NOT NULL, v BLOB NOT NULL) WITHOUT ROWID`, table)
	if _, err := d.sql.Exec(stmt); err != nil {
		return nil, fmt.Errorf("kvstore: create column %q: %w", name, err)
	}
	return &Column{db: d, name: name, table: table}, nil
}

// HasColumn reports whether the column family exists.
func (d *DB) HasColumn(name string) (bool, error) {
	if d.closed.Load() {
		return false, ErrClosed
	}
	var n int
	err := d.sql.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, "cf_"+name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("kvstore: lookup column %q: %w", name, err)
	}
	return n > 0, nil
}

// DropColumn removes the column family and all its keys.
func (d *DB) DropColumn(name string) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.sql.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableName(name))); err != nil {
		return fmt.Errorf("kvstore: drop column %q: %w", name, err)
	}
	return nil
}

// Flush checkpoints the write-ahead log into the main database file.
func (d *DB) Flush() error {
	if d.closed.Load() {
		return ErrClosed
	}
	if _, err := d.sql.Exec(`PRAGMA wal_checkpoint(PASSIVE)`); err != nil {
		return fmt.Errorf("kvstore: checkpoint: %w", err)
	}
	return nil
}

func tableName(column string) string {
	return `"cf_` + strings.ReplaceAll(column, `"`, `""`) + `"`
}
