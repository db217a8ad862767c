package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  string   `yaml:"readTimeout"`
	WriteTimeout string   `yaml:"writeTimeout"`
	IdleTimeout  string   `yaml:"idleTimeout"`
	CORSOrigins  []string `yaml:"corsOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // room-sync
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Upstream struct {
	BaseURL   string `yaml:"baseURL"`   // room REST API
	EventsURL string `yaml:"eventsURL"` // ws://.../rooms/{id}/events
	Token     string `yaml:"token"`
	Timeout   string `yaml:"timeout"`
}

type Sync struct {
	DeferredCapacity int    `yaml:"deferredCapacity"`
	DeferredMaxAge   string `yaml:"deferredMaxAge"`
	ReconnectMin     string `yaml:"reconnectMin"`
	ReconnectMax     string `yaml:"reconnectMax"`
}

type Auth struct {
	Disabled      bool   `yaml:"disabled"`
	PublicKeyPath string `yaml:"publicKeyPath"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	ClockSkew     string `yaml:"clockSkew"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Logging  Logging  `yaml:"logging"`
	Upstream Upstream `yaml:"upstream"`
	Rooms    []string `yaml:"rooms"`
	Sync     Sync     `yaml:"sync"`
	Auth     Auth     `yaml:"auth"`
}

// LoadConfig reads .env (if any), then the YAML file at CONFIG_PATH.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("UPSTREAM_TOKEN")); v != "" {
		c.Upstream.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_ENV")); v != "" {
		c.Logging.Env = v
	}
}

func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.baseURL is required")
	}
	if c.Upstream.EventsURL == "" {
		return errors.New("upstream.eventsURL is required")
	}
	if !c.Auth.Disabled && c.Auth.PublicKeyPath == "" {
		return errors.New("auth.publicKeyPath is required unless auth.disabled is set")
	}
	for i, id := range c.Rooms {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("rooms[%d] is empty", i)
		}
	}
	if c.Sync.DeferredCapacity < 0 {
		return errors.New("sync.deferredCapacity must not be negative")
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "room-sync"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Sync.DeferredCapacity == 0 {
		c.Sync.DeferredCapacity = 1024
	}
	return nil
}

func (h HTTP) Timeouts() (read, write, idle time.Duration) {
	return parseDurationOr(10*time.Second, h.ReadTimeout),
		parseDurationOr(15*time.Second, h.WriteTimeout),
		parseDurationOr(60*time.Second, h.IdleTimeout)
}

func (u Upstream) RequestTimeout() time.Duration {
	return parseDurationOr(5*time.Second, u.Timeout)
}

// DeferredMaxAgeOr returns the configured max age; "0" disables expiry.
func (s Sync) DeferredMaxAgeOr() time.Duration {
	if strings.TrimSpace(s.DeferredMaxAge) == "0" {
		return 0
	}
	return parseDurationOr(5*time.Minute, s.DeferredMaxAge)
}

func (s Sync) Backoff() (lo, hi time.Duration) {
	lo = parseDurationOr(500*time.Millisecond, s.ReconnectMin)
	hi = parseDurationOr(30*time.Second, s.ReconnectMax)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (a Auth) Skew() time.Duration {
	return parseDurationOr(30*time.Second, a.ClockSkew)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
