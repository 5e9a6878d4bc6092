package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort        = "5000"
	defaultDatabaseURL = "mongodb://localhost:27017/tasty_kitchen"
	defaultMailFrom    = `"The Tasty Kitchen" <no-reply@tastykitchen.local>`
)

// Config holds the application configuration
type Config struct {
	Port       string
	Env        string
	Production bool
	LogLevel   string

	// UseInMemoryDB forces the volatile store even in production
	UseInMemoryDB bool
	DatabaseURL   string

	JWTSecret      string
	PasswordScheme string
	GoogleClientID string

	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPass         string
	SMTPFrom         string
	SMTPUseTLS       bool
	MailerSendAPIKey string
	MailFromName     string
	PublicBaseURL    string

	NATSURL            string
	RedisURL           string
	CORSAllowedOrigins []string

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	env := strings.ToLower(getEnv("APP_ENV", getEnv("NODE_ENV", "development")))
	cfg := &Config{
		Port:       getEnv("PORT", defaultPort),
		Env:        env,
		Production: env == "production",
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		UseInMemoryDB: getBool("USE_IN_MEMORY_DB", false),
		DatabaseURL:   getEnv("DATABASE_URL", getEnv("MONGODB_URI", defaultDatabaseURL)),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		PasswordScheme: getEnv("PASSWORD_SCHEME", "bcrypt"),
		GoogleClientID: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),

		SMTPHost:         strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:         getInt("SMTP_PORT", 587),
		SMTPUser:         os.Getenv("SMTP_USER"),
		SMTPPass:         os.Getenv("SMTP_PASS"),
		SMTPFrom:         getEnv("SMTP_FROM", defaultMailFrom),
		SMTPUseTLS:       getBool("SMTP_USE_TLS", false),
		MailerSendAPIKey: strings.TrimSpace(os.Getenv("MAILERSEND_API_KEY")),
		MailFromName:     getEnv("MAIL_FROM_NAME", "The Tasty Kitchen"),

		NATSURL:            strings.TrimSpace(os.Getenv("NATS_URL")),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	cfg.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+cfg.Port), "/")

	// Load JWT_SECRET (required)
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	switch cfg.PasswordScheme {
	case "bcrypt", "argon2id":
	default:
		return nil, fmt.Errorf("PASSWORD_SCHEME must be bcrypt or argon2id, got %q", cfg.PasswordScheme)
	}

	return cfg, nil
}

// UseVolatileStore reports whether the in-memory store must be used without trying a durable one
func (c *Config) UseVolatileStore() bool {
	return c.UseInMemoryDB || !c.Production
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
