package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the checkpoint store connection pool.
type Config struct {
	// DSN is a libpq-style URL or key/value string,
	// e.g. "postgres://homebrain:secret@db:5432/homebrain?sslmode=require".
	DSN string

	// Pool bounds shared by all concurrent turns. Zero values get 25, 2
	// and 30 minutes.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// ApplicationName is reported in pg_stat_activity. Defaults to "homebrain".
	ApplicationName string

	// MigrateOnStart creates or upgrades the checkpoint schema in New.
	MigrateOnStart bool
}

// poolConfig parses the DSN and applies the pool bounds. Settings given in
// the DSN itself (pool_max_conns and friends) are overridden.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConns, 25)
	pc.MinConns = min(orDefault(c.MinConns, 2), pc.MaxConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, 30*time.Minute)

	name := orDefault(c.ApplicationName, "homebrain")
	pc.ConnConfig.RuntimeParams["application_name"] = name
	return pc, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
