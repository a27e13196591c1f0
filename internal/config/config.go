package config

import (
	"os"
	"strconv"

	"warden/internal/models"
)

// Load returns the server configuration from environment variables
func Load() models.Config {
	return models.Config{
		Port:             getEnv("PORT", "9080"),
		DBPath:           getEnv("DB_PATH", "warden.db"),
		AuthEnabled:      getEnv("AUTH_ENABLED", "true") == "true",
		AdminUser:        getEnv("ADMIN_USER", "admin"),
		AdminPass:        getEnv("ADMIN_PASS", ""),
		TokenTTLDays:     getEnvInt("TOKEN_TTL_DAYS", 30),
		LogRetentionDays: getEnvInt("LOG_RETENTION_DAYS", 30),
		NotifyURL:        getEnv("NOTIFY_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
