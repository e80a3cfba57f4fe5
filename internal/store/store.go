// Package store implements the embedded price-history database and the
// checkpoint ledger on SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicateSnapshot is returned when a snapshot insert violates the
// (product, outlet, scraped_at) uniqueness constraint.
var ErrDuplicateSnapshot = errors.New("duplicate price snapshot")

// ErrRunNotFound is returned when a requested run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Store is one live handle on the price-history database. Callers construct
// it once and pass it explicitly; there is no hidden path-keyed registry.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to the SQLite database at path, creating the file when
// missing. Write-ahead logging with relaxed sync is enabled so concurrent
// readers proceed without blocking on writer checkpoints.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path,
	)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}

	// SQLite allows a single writer; serialize statements on one connection
	// and let WAL carry concurrent readers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite at %s: %w", path, err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS outlets (
	outlet_id   TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	region      TEXT NOT NULL DEFAULT '',
	lat         REAL NOT NULL DEFAULT 0,
	lon         REAL NOT NULL DEFAULT 0,
	last_synced TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	product_id  TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	brand       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	category_l2 TEXT NOT NULL DEFAULT '',
	origin      TEXT NOT NULL DEFAULT '',
	sale_type   TEXT NOT NULL DEFAULT '',
	first_seen  TIMESTAMP NOT NULL,
	last_seen   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS price_snapshots (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id           TEXT NOT NULL REFERENCES products(product_id),
	outlet_id            TEXT NOT NULL REFERENCES outlets(outlet_id),
	scraped_at           TIMESTAMP NOT NULL,
	price                REAL NOT NULL,
	price_per_unit       REAL,
	unit                 TEXT NOT NULL DEFAULT '',
	display_name         TEXT NOT NULL DEFAULT '',
	in_store             INTEGER NOT NULL DEFAULT 0,
	online               INTEGER NOT NULL DEFAULT 0,
	promo_price          REAL,
	promo_price_per_unit REAL,
	promo_type           TEXT,
	promo_desc           TEXT,
	promo_card_required  INTEGER,
	promo_limit          INTEGER,
	UNIQUE (product_id, outlet_id, scraped_at)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_product_time
	ON price_snapshots (product_id, scraped_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_outlet
	ON price_snapshots (outlet_id);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	status       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS work_items (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	outlet_id     TEXT NOT NULL,
	category_slug TEXT NOT NULL,
	status        TEXT NOT NULL,
	last_page     INTEGER NOT NULL DEFAULT 0,
	product_count INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	UNIQUE (run_id, outlet_id, category_slug)
);

CREATE INDEX IF NOT EXISTS idx_work_items_run ON work_items (run_id, status);
`

// Migrate creates the schema. It is idempotent and safe to invoke on an
// existing database file.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// CheckpointResult reports the outcome of a WAL checkpoint.
type CheckpointResult struct {
	Busy       bool
	LogPages   int
	MovedPages int
}

// Checkpoint compacts the write-ahead log on demand and reports pages
// processed and moved back into the main database file.
func (s *Store) Checkpoint(ctx context.Context) (CheckpointResult, error) {
	var busy, logPages, moved int
	row := s.db.QueryRowxContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")
	if err := row.Scan(&busy, &logPages, &moved); err != nil {
		return CheckpointResult{}, fmt.Errorf("wal checkpoint: %w", err)
	}
	res := CheckpointResult{Busy: busy != 0, LogPages: logPages, MovedPages: moved}
	s.logger.Debug("wal checkpoint",
		zap.Bool("busy", res.Busy),
		zap.Int("log_pages", res.LogPages),
		zap.Int("moved_pages", res.MovedPages),
	)
	return res, nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint failure.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	default:
		return false
	}
}
