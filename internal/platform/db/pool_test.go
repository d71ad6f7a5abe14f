package db

import (
	"context"
	"testing"
	"time"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@localhost:5432/tracker", 8, 2)
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if cfg.MaxConns != 8 || cfg.MinConns != 2 {
		t.Errorf("expected 8/2 conns, got %d/%d", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.MaxConnIdleTime != 30*time.Minute {
		t.Errorf("unexpected idle time %v", cfg.MaxConnIdleTime)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != ApplicationName {
		t.Errorf("expected application_name %q, got %q", ApplicationName, got)
	}
}

func TestPoolConfig_KeepsApplicationName(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@localhost:5432/tracker?application_name=reports", 4, 0)
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "reports" {
		t.Errorf("expected URL application_name to win, got %q", got)
	}
}

func TestPoolConfig_InvalidURL(t *testing.T) {
	if _, err := poolConfig("postgres://u:p@localhost:notaport/db", 4, 0); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewPool_Unreachable(t *testing.T) {
	_, err := NewPool(context.Background(), "postgres://u:p@127.0.0.1:1/db?connect_timeout=1", 2, 0)
	if err == nil {
		t.Fatal("expected ping failure")
	}
}
