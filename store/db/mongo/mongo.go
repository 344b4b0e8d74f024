package mongo

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

const (
	collChatHistory = "chat_history"
	collShortTerm   = "short_term_memory"
	collLongTerm    = "long_term_memory"
)

// DB is the document backend. Text search runs on a weighted text index;
// SRV URIs (mongodb+srv:) get DNS seedlist resolution from the driver.
type DB struct {
	client  *mongo.Client
	db      *mongo.Database
	profile *profile.Profile
}

// NewDB connects to the MongoDB deployment named by the DSN. The database
// name comes from the URI path, defaulting to "mnemosyne".
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(profile.DSN))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	driver := DB{
		client:  client,
		db:      client.Database(databaseName(profile.DSN)),
		profile: profile,
	}
	return &driver, nil
}

func databaseName(dsn string) string {
	rest := dsn
	if idx := strings.Index(rest, "://"); idx != -1 {
		rest = rest[idx+3:]
	}
	if idx := strings.Index(rest, "/"); idx != -1 {
		rest = rest[idx+1:]
		if idx := strings.IndexAny(rest, "?"); idx != -1 {
			rest = rest[:idx]
		}
		if rest != "" {
			return rest
		}
	}
	return "mnemosyne"
}

func (d *DB) Type() string {
	return "mongodb"
}

func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// PoolStatus reports the configured pool bounds; the driver does not expose
// live checkout counts.
func (d *DB) PoolStatus() *store.PoolStatus {
	return &store.PoolStatus{
		Backend:      "mongodb",
		MaxOpenConns: d.profile.PoolSize + d.profile.PoolMaxOverflow,
	}
}
