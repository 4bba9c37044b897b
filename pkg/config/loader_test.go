package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestViperLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewViperLoader("", "").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Lock.TTL != 30*time.Second {
		t.Errorf("lock.ttl = %v, want 30s", cfg.Lock.TTL)
	}
	if cfg.Lock.RenewFailurePolicy != "fail_fast" {
		t.Errorf("renew failure policy = %q, want fail_fast", cfg.Lock.RenewFailurePolicy)
	}
	if cfg.Backend.Type != BackendMemory {
		t.Errorf("backend = %q, want memory", cfg.Backend.Type)
	}
	if cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("metrics addr = %q, want :9090", cfg.Server.MetricsAddr)
	}
}

func TestViperLoader_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockward.yaml")
	content := `
lock:
  name: orders-report
  ttl: 20s
  renew_fraction: 0.5
backend:
  type: redis
  redis:
    url: redis://localhost:6379/0
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewViperLoader(path, "").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lock.Name != "orders-report" {
		t.Errorf("lock.name = %q", cfg.Lock.Name)
	}
	if cfg.Lock.TTL != 20*time.Second {
		t.Errorf("lock.ttl = %v, want 20s", cfg.Lock.TTL)
	}
	if cfg.Lock.RenewFraction != 0.5 {
		t.Errorf("renew_fraction = %v, want 0.5", cfg.Lock.RenewFraction)
	}
	if cfg.Backend.Type != BackendRedis {
		t.Errorf("backend = %q, want redis", cfg.Backend.Type)
	}
	// Untouched keys keep their defaults.
	if cfg.Lock.OperationTimeout != 3*time.Second {
		t.Errorf("operation_timeout = %v, want default 3s", cfg.Lock.OperationTimeout)
	}
}

func TestViperLoader_EnvironmentOverrides(t *testing.T) {
	t.Setenv("LOCKWARD_LOCK_TTL", "45s")
	t.Setenv("LOCKWARD_SERVICE_NAME", "report-runner")

	cfg, err := NewViperLoader("", "").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lock.TTL != 45*time.Second {
		t.Errorf("lock.ttl = %v, want env override 45s", cfg.Lock.TTL)
	}
	if cfg.Service.Name != "report-runner" {
		t.Errorf("service.name = %q, want env override", cfg.Service.Name)
	}
}

func TestViperLoader_MissingFileFails(t *testing.T) {
	if _, err := NewViperLoader("/nonexistent/lockward.yaml", "").Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestViperLoader_Validate(t *testing.T) {
	loader := NewViperLoader("", "")

	valid := DefaultConfig()
	if err := loader.Validate(&valid); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.Lock.TTL = 0 }},
		{"fraction too high", func(c *Config) { c.Lock.RenewFraction = 1 }},
		{"fraction too low", func(c *Config) { c.Lock.RenewFraction = 0 }},
		{"negative margin", func(c *Config) { c.Lock.ClockSkewMargin = -time.Second }},
		{"margin at ttl", func(c *Config) { c.Lock.ClockSkewMargin = c.Lock.TTL }},
		{"unknown policy", func(c *Config) { c.Lock.RenewFailurePolicy = "best_effort" }},
		{"unknown backend", func(c *Config) { c.Backend.Type = "etcd" }},
		{"postgres without url", func(c *Config) { c.Backend.Type = BackendPostgres }},
		{"redis without url", func(c *Config) { c.Backend.Type = BackendRedis }},
		{"mongodb without uri", func(c *Config) { c.Backend.Type = BackendMongoDB }},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := loader.Validate(&cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := loader.Validate(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	retry := RetryConfig{Initial: time.Second, Max: 8 * time.Second, Multiplier: 2}
	backoff := retry.Backoff()
	if backoff.Initial != time.Second || backoff.Max != 8*time.Second || backoff.Multiplier != 2 {
		t.Fatalf("backoff = %+v", backoff)
	}
}
