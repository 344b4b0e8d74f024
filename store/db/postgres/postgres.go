package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

// DB is the PostgreSQL backend. Full-text search runs on tsvector columns
// maintained by BEFORE INSERT/UPDATE triggers with GIN indexes.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database behind the "postgresql:" DSN prefix.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}
	dsn := profile.DSN
	if strings.HasPrefix(dsn, "postgresql:") && !strings.HasPrefix(dsn, "postgresql://") {
		dsn = "postgresql://" + strings.TrimPrefix(dsn, "postgresql:")
	}

	pgDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres db")
	}

	pgDB.SetMaxOpenConns(profile.PoolSize + profile.PoolMaxOverflow)
	pgDB.SetMaxIdleConns(profile.PoolSize)
	pgDB.SetConnMaxLifetime(time.Duration(profile.PoolRecycle) * time.Second)

	if profile.PoolPrePing {
		if err := pgDB.Ping(); err != nil {
			return nil, errors.Wrap(err, "failed to ping postgres db")
		}
	}

	driver := DB{db: pgDB, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Type() string {
	return "postgres"
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) PoolStatus() *store.PoolStatus {
	stats := d.db.Stats()
	return &store.PoolStatus{
		Backend:      "postgres",
		OpenConns:    stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		WaitCount:    stats.WaitCount,
		MaxOpenConns: stats.MaxOpenConnections,
	}
}

// placeholder returns the n-th positional parameter, e.g. $3.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns a comma-joined run of positional parameters $1..$n.
func placeholders(n int) string {
	list := []string{}
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
