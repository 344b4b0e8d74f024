// Package db selects and constructs the storage driver from the DSN prefix.
package db

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/mongo"
	"github.com/hrygo/mnemosyne/store/db/mysql"
	"github.com/hrygo/mnemosyne/store/db/postgres"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the DSN prefix:
// sqlite:, mysql:, postgresql: (or postgres:), mongodb: / mongodb+srv:.
// If the document backend cannot be reached at startup, the embedded
// relational backend takes over so the process still comes up.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	dsn := profile.DSN
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.NewDB(profile)
	case strings.HasPrefix(dsn, "mysql:"):
		return mysql.NewDB(profile)
	case strings.HasPrefix(dsn, "postgresql:"), strings.HasPrefix(dsn, "postgres:"):
		return postgres.NewDB(profile)
	case strings.HasPrefix(dsn, "mongodb:"), strings.HasPrefix(dsn, "mongodb+srv:"):
		driver, err := mongo.NewDB(profile)
		if err != nil {
			slog.Warn("document backend unavailable, falling back to embedded sqlite",
				"error", err)
			fallback := *profile
			fallback.DSN = "sqlite::memory:"
			return sqlite.NewDB(&fallback)
		}
		return driver, nil
	default:
		return nil, errors.Errorf("unknown database driver for dsn: %s", redactDSN(dsn))
	}
}

// redactDSN strips credentials from a DSN before logging.
func redactDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at != -1 {
		if scheme := strings.Index(dsn, "://"); scheme != -1 && scheme+3 < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}
