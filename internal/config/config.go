package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
)

// Config holds the process-wide runtime settings.  Each field corresponds
// to an environment variable; per-concern settings live in their own
// loaders (auth, cache, rate limit, storage).
type Config struct {
	Env           string // application environment (e.g. "dev", "prod")
	Port          string // HTTP port to listen on
	DBUser        string // database username
	DBPass        string // database password (optional)
	DBHost        string // database host address
	DBPort        string // database port number
	DBName        string // database name
	SessionSecret string // secret used to sign session tokens
	BcryptCost    int    // bcrypt cost for password hashing
	LogLevel      string // debug, info, warn or error
	AMQPURL       string // RabbitMQ URL; empty disables account events
	PublicURL     string // base URL used in links handed to users
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:           must("APP_ENV"),
		Port:          must("APP_PORT"),
		DBUser:        must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        must("DB_HOST"),
		DBPort:        must("DB_PORT"),
		DBName:        must("DB_NAME"),
		SessionSecret: must("SESSION_SECRET"),
		BcryptCost:    envInt("BCRYPT_COST", 12),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		AMQPURL:       os.Getenv("AMQP_URL"),
		PublicURL:     envStr("PUBLIC_URL", "http://localhost:8080"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
