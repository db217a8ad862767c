package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
upstream:
  baseURL: http://rooms.local/api
  eventsURL: ws://rooms.local/ws/rooms/{id}/events
auth:
  disabled: true
rooms: [r1, r2]
`

func TestParse_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_TOKEN", "")
	t.Setenv("APP_ENV", "")

	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Logging.Service != "room-sync" || cfg.Logging.Backend != "std" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Sync.DeferredCapacity != 1024 || cfg.Sync.DeferredMaxAgeOr() != 5*time.Minute {
		t.Fatalf("sync defaults: %+v", cfg.Sync)
	}
	lo, hi := cfg.Sync.Backoff()
	if lo != 500*time.Millisecond || hi != 30*time.Second {
		t.Fatalf("backoff defaults: %v %v", lo, hi)
	}
	if len(cfg.Rooms) != 2 {
		t.Fatalf("rooms = %v", cfg.Rooms)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_TOKEN", "secret")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Upstream.Token != "secret" || cfg.Logging.Env != "prod" {
		t.Fatalf("env not applied: token=%q env=%q", cfg.Upstream.Token, cfg.Logging.Env)
	}
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"upstream.baseURL": "upstream: {eventsURL: ws://x}\nauth: {disabled: true}",
		"auth.publicKeyPath": `
upstream: {baseURL: http://x, eventsURL: ws://x}
`,
		"rooms[0]": `
upstream: {baseURL: http://x, eventsURL: ws://x}
auth: {disabled: true}
rooms: [" "]
`,
	}
	for want, doc := range cases {
		_, err := Parse([]byte(doc))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error about %s, got %v", want, err)
		}
	}
}

func TestSync_MaxAgeZeroDisables(t *testing.T) {
	if got := (Sync{DeferredMaxAge: "0"}).DeferredMaxAgeOr(); got != 0 {
		t.Fatalf("got %v", got)
	}
	if got := (Sync{DeferredMaxAge: "90s"}).DeferredMaxAgeOr(); got != 90*time.Second {
		t.Fatalf("got %v", got)
	}
}

func TestLoadConfig_FromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Upstream.BaseURL != "http://rooms.local/api" {
		t.Fatalf("baseURL = %q", cfg.Upstream.BaseURL)
	}
}
