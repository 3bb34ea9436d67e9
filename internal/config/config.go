package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Predictor PredictorConfig `yaml:"predictor"`
	Policy    PolicyConfig    `yaml:"policy"`
	Baseline  BaselineConfig  `yaml:"baseline"`
	Edges     []EdgeConfig    `yaml:"edges"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	ModelMode string `yaml:"model_mode"`
}

// StoreConfig selects the cache key-value backend. Backend is "redis"
// or "memory".
type StoreConfig struct {
	Backend      string        `yaml:"backend"`
	RedisAddress string        `yaml:"redis_address"`
	RedisDB      int           `yaml:"redis_db"`
	RedisPass    string        `yaml:"redis_password"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Users     []UserConfig  `yaml:"users"`
}

// UserConfig seeds one operator account. PasswordHash is a bcrypt hash.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

type PredictorConfig struct {
	Beta float64 `yaml:"beta"`
}

type PolicyConfig struct {
	PrefetchThreshold int `yaml:"prefetch_threshold"`
	EvictionThreshold int `yaml:"eviction_threshold"`
	MinTTLSeconds     int `yaml:"min_ttl_seconds"`
	MaxTTLSeconds     int `yaml:"max_ttl_seconds"`
}

type BaselineConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxItems   int           `yaml:"max_items"`
}

// EdgeConfig declares one edge node served by this control plane.
type EdgeConfig struct {
	EdgeID     string        `yaml:"edge_id"`
	Region     string        `yaml:"region"`
	CapacityMB int           `yaml:"capacity_mb"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      8080,
			LogLevel:  "info",
			ModelMode: "local",
		},
		Store: StoreConfig{
			Backend:      "memory",
			RedisAddress: "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Predictor: PredictorConfig{Beta: 0.2},
		Policy: PolicyConfig{
			PrefetchThreshold: 2,
			EvictionThreshold: 0,
			MinTTLSeconds:     60,
			MaxTTLSeconds:     86400,
		},
		Baseline: BaselineConfig{
			DefaultTTL: time.Hour,
			MaxItems:   1000,
		},
	}
}

// Load reads configuration from a YAML file, layered on the defaults.
// An empty path returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
