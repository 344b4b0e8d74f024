package mysql

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	// Import the MySQL driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

// DB is the MySQL backend. Full-text search runs on FULLTEXT indexes in
// natural language mode, split into per-tier queries so empty tables
// short-circuit cleanly.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a MySQL database behind the "mysql:" DSN prefix. The remainder
// of the DSN is passed to the driver as-is (user:pass@tcp(host)/dbname).
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}
	dsn := strings.TrimPrefix(profile.DSN, "mysql://")
	dsn = strings.TrimPrefix(dsn, "mysql:")
	if !strings.Contains(dsn, "parseTime") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}

	mysqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mysql db")
	}

	mysqlDB.SetMaxOpenConns(profile.PoolSize + profile.PoolMaxOverflow)
	mysqlDB.SetMaxIdleConns(profile.PoolSize)
	mysqlDB.SetConnMaxLifetime(time.Duration(profile.PoolRecycle) * time.Second)

	if profile.PoolPrePing {
		if err := mysqlDB.Ping(); err != nil {
			return nil, errors.Wrap(err, "failed to ping mysql db")
		}
	}

	driver := DB{db: mysqlDB, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Type() string {
	return "mysql"
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) PoolStatus() *store.PoolStatus {
	stats := d.db.Stats()
	return &store.PoolStatus{
		Backend:      "mysql",
		OpenConns:    stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		WaitCount:    stats.WaitCount,
		MaxOpenConns: stats.MaxOpenConnections,
	}
}
