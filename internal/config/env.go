package config

import (
	"os"
	"strconv"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("SMARTCDN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("SMARTCDN_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if mode := os.Getenv("SMARTCDN_MODEL_MODE"); mode != "" {
		cfg.Server.ModelMode = mode
	}

	if backend := os.Getenv("SMARTCDN_STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}

	if addr := os.Getenv("SMARTCDN_REDIS_ADDR"); addr != "" {
		cfg.Store.RedisAddress = addr
	}

	if pass := os.Getenv("SMARTCDN_REDIS_PASSWORD"); pass != "" {
		cfg.Store.RedisPass = pass
	}

	if secret := os.Getenv("SMARTCDN_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if host := os.Getenv("SMARTCDN_DB_HOST"); host != "" {
		cfg.Database.Host = host
		cfg.Database.Enabled = true
	}

	if port := os.Getenv("SMARTCDN_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}

	if user := os.Getenv("SMARTCDN_DB_USER"); user != "" {
		cfg.Database.User = user
	}

	if pass := os.Getenv("SMARTCDN_DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}

	if name := os.Getenv("SMARTCDN_DB_NAME"); name != "" {
		cfg.Database.Database = name
	}
}
