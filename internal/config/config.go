package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database (the shared remote record store)
	DatabaseType   string
	DatabaseURL    string
	DatabasePath   string
	MigrationsPath string

	// Local secure identity cache
	KeychainPath string

	// Sign in with Apple
	AppleClientID       string
	AppleTeamID         string
	AppleKeyID          string
	ApplePrivateKeyPath string
	AppleRedirectURL    string

	// Invite emails (Amazon SES)
	SESRegion    string
	SESFromEmail string
	SESFromName  string

	// Delay before the single keychain write retry
	KeychainRetryDelay time.Duration
}

// Load reads configuration from a .env file (if present) and environment
// variables with sensible defaults
func Load() *Config {
	// A missing .env file is fine; plain env vars still apply
	_ = godotenv.Load()

	return &Config{
		DatabaseType:   getEnv("DB_TYPE", "sqlite"),
		DatabaseURL:    getEnv("DB_URL", ""),
		DatabasePath:   getEnv("DB_PATH", "./savequest.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),

		KeychainPath: getEnv("KEYCHAIN_PATH", defaultKeychainPath()),

		AppleClientID:       getEnv("APPLE_CLIENT_ID", ""),
		AppleTeamID:         getEnv("APPLE_TEAM_ID", ""),
		AppleKeyID:          getEnv("APPLE_KEY_ID", ""),
		ApplePrivateKeyPath: getEnv("APPLE_PRIVATE_KEY_PATH", ""),
		AppleRedirectURL:    getEnv("APPLE_REDIRECT_URL", ""),

		SESRegion:    getEnv("SES_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Savequest"),

		KeychainRetryDelay: 250 * time.Millisecond,
	}
}

func defaultKeychainPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.savequest-identity"
	}
	return filepath.Join(home, ".savequest", "identity")
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
