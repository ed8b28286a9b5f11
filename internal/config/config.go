package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // debug, info, warn or error

	DBDriver   string // "mysql" (default) or "sqlite"
	DBUser     string // database username
	DBPass     string // database password (optional)
	DBHost     string // database host address
	DBPort     string // database port number
	DBName     string // database name
	SQLitePath string // file used when DBDriver is sqlite

	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time‑to‑live in minutes
	RefreshTTLDays int    // refresh token time‑to‑live in days
	BcryptCost     int    // bcrypt cost for password hashing

	NoShowPenalty     int           // honor deducted by a no-show
	WarnPenalty       int           // honor deducted by a moderation warning
	QueueAlertBefore  int           // notify passengers this many numbers ahead
	DefaultHonorScore int           // honor_score of new accounts
	SessionLockTTL    time.Duration // lifetime of a per-session lock
	ProfileCacheTTL   time.Duration // lifetime of cached profiles

	AMQPURL      string // RabbitMQ connection URL; empty disables events
	EventLogPath string // audit log file written by the event consumer
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:      must("APP_ENV"),
		Port:     must("APP_PORT"),
		LogLevel: envStr("LOG_LEVEL", "info"),

		DBDriver:   strings.ToLower(envStr("DB_DRIVER", "mysql")),
		DBPass:     os.Getenv("DB_PASS"),
		SQLitePath: envStr("SQLITE_PATH", "gbus.db"),

		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 14),
		BcryptCost:     envInt("BCRYPT_COST", 10),

		NoShowPenalty:     envInt("NOSHOW_PENALTY", 10),
		WarnPenalty:       envInt("WARN_PENALTY", 10),
		QueueAlertBefore:  envInt("QUEUE_ALERT_BEFORE", 3),
		DefaultHonorScore: envInt("DEFAULT_HONOR_SCORE", 100),
		SessionLockTTL:    envDur("SESSION_LOCK_TTL", 5*time.Second),
		ProfileCacheTTL:   envDur("PROFILE_CACHE_TTL", time.Minute),

		AMQPURL:      amqpURL(),
		EventLogPath: envStr("EVENT_LOG_PATH", "logs/events.log"),
	}
	// MySQL connection settings are only required when MySQL is in use.
	if cfg.DBDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}

// amqpURL mirrors the RABBITMQ_URL / AMQP_URL fallback of the broker code.
func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
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
