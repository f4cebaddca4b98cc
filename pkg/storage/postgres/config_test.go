package postgres

import (
	"testing"
	"time"
)

func TestPoolConfigDefaults(t *testing.T) {
	pc, err := Config{DSN: "postgres://u:p@localhost:5432/hb"}.poolConfig()
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pc.MaxConns != 25 || pc.MinConns != 2 || pc.MaxConnLifetime != 30*time.Minute {
		t.Errorf("pool = max %d min %d lifetime %s", pc.MaxConns, pc.MinConns, pc.MaxConnLifetime)
	}
	if got := pc.ConnConfig.RuntimeParams["application_name"]; got != "homebrain" {
		t.Errorf("application_name = %q", got)
	}
}

func TestPoolConfigOverrides(t *testing.T) {
	pc, err := Config{
		DSN:             "postgres://u:p@localhost:5432/hb?pool_max_conns=99",
		MaxConns:        4,
		MinConns:        10,
		MaxConnLifetime: time.Minute,
		ApplicationName: "homebrain-test",
	}.poolConfig()
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pc.MaxConns != 4 {
		t.Errorf("MaxConns = %d, want 4", pc.MaxConns)
	}
	if pc.MinConns != 4 {
		t.Errorf("MinConns = %d, want clamp to 4", pc.MinConns)
	}
	if pc.MaxConnLifetime != time.Minute {
		t.Errorf("MaxConnLifetime = %s", pc.MaxConnLifetime)
	}
	if got := pc.ConnConfig.RuntimeParams["application_name"]; got != "homebrain-test" {
		t.Errorf("application_name = %q", got)
	}
}

func TestPoolConfigInvalidDSN(t *testing.T) {
	if _, err := (Config{DSN: "::not a dsn::"}).poolConfig(); err == nil {
		t.Fatal("expected error")
	}
}
