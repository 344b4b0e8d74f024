package sqlite

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

// DB is the embedded relational backend. Full-text search runs on an FTS5
// virtual table kept in sync by triggers on both memory tables.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database behind the "sqlite:" DSN prefix.
// In-memory databases get a single shared connection, otherwise every
// statement would see a different empty database.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}
	path := strings.TrimPrefix(profile.DSN, "sqlite:")
	path = strings.TrimPrefix(path, "//")

	// Connect with some sane settings:
	// - No foreign key constraints: chat links are cleared explicitly on delete.
	// - Journal mode set to WAL: prevents locking issues for concurrent reads.
	//
	// When using the `modernc.org/sqlite` driver, each pragma must be
	// prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	if strings.Contains(path, ":memory:") {
		// A single shared connection keeps the in-memory database alive
		// across statements.
		sqliteDB.SetMaxOpenConns(1)
		sqliteDB.SetMaxIdleConns(1)
	} else {
		applyPoolSettings(sqliteDB, profile)
	}

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
}

func applyPoolSettings(db *sql.DB, profile *profile.Profile) {
	// SQLite with WAL serializes writes anyway; a small pool is optimal.
	size := profile.PoolSize
	if size > 4 {
		size = 4
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Type() string {
	return "sqlite"
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) PoolStatus() *store.PoolStatus {
	stats := d.db.Stats()
	return &store.PoolStatus{
		Backend:      "sqlite",
		OpenConns:    stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		WaitCount:    stats.WaitCount,
		MaxOpenConns: stats.MaxOpenConnections,
	}
}
