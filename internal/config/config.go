// Package config loads service configuration from an optional YAML file
// with environment-variable overrides. Environment always wins, so a
// deployment can ship one config file and tune individual instances.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Registry configures the coordination service.
type Registry struct {
	// ListenAddr is the address the HTTP server binds.
	ListenAddr string `yaml:"listen_addr"`

	// AllowedOrigins is the CORS allow-list. Empty means no browser
	// origin is admitted.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// FanoutTimeout bounds each per-endpoint sub-request of an
	// aggregated read.
	FanoutTimeout time.Duration `yaml:"fanout_timeout"`

	// RedisURL, when set, backs the cache token with redis so several
	// registry instances share one token. Empty selects in-process state.
	RedisURL string `yaml:"redis_url"`

	// DataDir holds the endpoint directory and slug snapshots.
	DataDir string `yaml:"data_dir"`

	// HealthInterval is the endpoint health probe period. Zero disables
	// the monitor.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// Store configures one tenant store service.
type Store struct {
	ListenAddr string `yaml:"listen_addr"`

	// PublicURL is the address the registry should reach this store at;
	// it is what gets registered, not the bind address.
	PublicURL string `yaml:"public_url"`

	// RegistryURL locates the coordination service for registration and
	// cache invalidation notices.
	RegistryURL string `yaml:"registry_url"`

	// TenantID identifies the business this store serves.
	TenantID string `yaml:"tenant_id"`

	// DisplayName and ImageURL describe the tenant in the directory.
	DisplayName string `yaml:"display_name"`
	ImageURL    string `yaml:"image_url"`

	// LockWait bounds how long a mutation waits for the store
	// serialization lock before giving up.
	LockWait time.Duration `yaml:"lock_wait"`

	// DataDir holds the item and order snapshots.
	DataDir string `yaml:"data_dir"`
}

// LoadRegistry reads path (if non-empty) and applies env overrides.
func LoadRegistry(path string) (Registry, error) {
	cfg := Registry{
		ListenAddr:     ":8080",
		FanoutTimeout:  4 * time.Second,
		DataDir:        "data",
		HealthInterval: 30 * time.Second,
	}
	if err := loadYAML(path, &cfg); err != nil {
		return Registry{}, err
	}

	cfg.ListenAddr = getenv("REGISTRY_ADDR", cfg.ListenAddr)
	cfg.RedisURL = getenv("REGISTRY_REDIS_URL", cfg.RedisURL)
	cfg.DataDir = getenv("REGISTRY_DATA_DIR", cfg.DataDir)
	if v := os.Getenv("REGISTRY_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if err := envDuration("REGISTRY_FANOUT_TIMEOUT", &cfg.FanoutTimeout); err != nil {
		return Registry{}, err
	}
	if err := envDuration("REGISTRY_HEALTH_INTERVAL", &cfg.HealthInterval); err != nil {
		return Registry{}, err
	}
	return cfg, nil
}

// LoadStore reads path (if non-empty) and applies env overrides.
// TenantID and RegistryURL are required.
func LoadStore(path string) (Store, error) {
	cfg := Store{
		ListenAddr:  ":8081",
		RegistryURL: "http://localhost:8080",
		LockWait:    30 * time.Second,
		DataDir:     "data",
	}
	if err := loadYAML(path, &cfg); err != nil {
		return Store{}, err
	}

	cfg.ListenAddr = getenv("STORE_ADDR", cfg.ListenAddr)
	cfg.PublicURL = getenv("STORE_PUBLIC_URL", cfg.PublicURL)
	cfg.RegistryURL = getenv("STORE_REGISTRY_URL", cfg.RegistryURL)
	cfg.TenantID = getenv("STORE_TENANT_ID", cfg.TenantID)
	cfg.DisplayName = getenv("STORE_DISPLAY_NAME", cfg.DisplayName)
	cfg.ImageURL = getenv("STORE_IMAGE_URL", cfg.ImageURL)
	cfg.DataDir = getenv("STORE_DATA_DIR", cfg.DataDir)
	if err := envDuration("STORE_LOCK_WAIT", &cfg.LockWait); err != nil {
		return Store{}, err
	}

	if cfg.TenantID == "" {
		return Store{}, fmt.Errorf("config: tenant_id (or STORE_TENANT_ID) is required")
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost" + cfg.ListenAddr
	}
	return cfg, nil
}

func loadYAML(path string, dst any) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDuration(k string, dst *time.Duration) error {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", k, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
