package server_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charadev96/dchat/internal/server"
)

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := server.LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := server.DefaultConfig()
	if cfg.Server.AdminAddr != want.Server.AdminAddr || cfg.Pin.Validity != want.Pin.Validity {
		t.Fatalf("want defaults, got %+v", cfg)
	}
	if cfg.Pin.Validity.Duration != 30*time.Minute {
		t.Fatalf("want 30m pin validity, got %s", cfg.Pin.Validity)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dchat.toml")
	data := `
log_level = "debug"

[server]
public_address = "0.0.0.0:9443"
database = "/var/lib/dchat/dchat.db"

[link]
host = "chat.example.org"

[pin]
validity = "10m"
single_use = true

[keys]
generate_timeout = "5s"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := server.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level: got %q", cfg.LogLevel)
	}
	if cfg.Server.PublicAddr != "0.0.0.0:9443" || cfg.Server.AdminAddr != server.DefaultAdminAddr {
		t.Fatalf("addresses: got %q and %q", cfg.Server.PublicAddr, cfg.Server.AdminAddr)
	}
	if cfg.Link.Host != "chat.example.org" || cfg.Link.Scheme != "https" {
		t.Fatalf("link: got %+v", cfg.Link)
	}
	if cfg.Pin.Validity.Duration != 10*time.Minute || !cfg.Pin.SingleUse {
		t.Fatalf("pin: got %+v", cfg.Pin)
	}
	if cfg.Pin.PurgeInterval.Duration != server.DefaultPurgeInterval {
		t.Fatalf("purge interval: got %s", cfg.Pin.PurgeInterval)
	}
	if cfg.Keys.GenerateTimeout.Duration != 5*time.Second {
		t.Fatalf("generate timeout: got %s", cfg.Keys.GenerateTimeout)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "[pin]\nvalidty = \"10m\"\n",
		"bad duration":      "[pin]\nvalidity = \"ten minutes\"\n",
		"negative duration": "[pin]\nvalidity = \"-1m\"\n",
		"not toml":          "[pin\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dchat.toml")
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := server.LoadConfig(path); err == nil {
				t.Fatal("want error")
			}
		})
	}
}
