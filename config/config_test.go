package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Node.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("unexpected default listen addr: %s", cfg.Node.ListenAddr)
	}
	if cfg.Node.DefaultTTL != 7 {
		t.Fatalf("unexpected default TTL: %d", cfg.Node.DefaultTTL)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	content := "node:\n  listen_addr: 10.0.0.5:7000\n  default_ttl: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Node.ListenAddr != "10.0.0.5:7000" {
		t.Fatalf("unexpected listen addr: %s", cfg.Node.ListenAddr)
	}
	if cfg.Node.DefaultTTL != 3 {
		t.Fatalf("unexpected TTL: %d", cfg.Node.DefaultTTL)
	}
	if cfg.Control.Addr != ":8080" {
		t.Fatalf("unset fields should keep their default, got %s", cfg.Control.Addr)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	if err := os.WriteFile(path, []byte("node:\n  listen_addr: 10.0.0.5:7000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KVOVERLAY_NODE_LISTEN_ADDR", "192.168.1.1:9999")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Node.ListenAddr != "192.168.1.1:9999" {
		t.Fatalf("expected env override, got %s", cfg.Node.ListenAddr)
	}
}

func TestValidateRejectsEmptyListenAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.ListenAddr = ""
	if err := Validate(cfg); err != ErrEmptyListenAddr {
		t.Fatalf("expected ErrEmptyListenAddr, got %v", err)
	}
}

func TestValidateRejectsNonPositiveTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.DefaultTTL = 0
	if err := Validate(cfg); err != ErrInvalidTTL {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}
