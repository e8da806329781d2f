package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabasePath  string
	ServerAddress string
	JWTSecret     string
}

func Load() *Config {
	// Optional .env for local development; real env vars win.
	godotenv.Load()

	return &Config{
		DatabasePath:  getEnv("DATABASE_PATH", "./hidrogest.db"),
		ServerAddress: getEnv("SERVER_ADDRESS", ":8082"),
		JWTSecret:     getEnv("JWT_SECRET", "hidrogest-secret-change-in-production"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
