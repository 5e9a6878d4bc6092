package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "NODE_ENV", "PORT", "LOG_LEVEL", "USE_IN_MEMORY_DB", "DATABASE_URL", "MONGODB_URI",
		"JWT_SECRET", "PASSWORD_SCHEME", "GOOGLE_CLIENT_ID", "SMTP_HOST", "SMTP_PORT", "SMTP_FROM",
		"SMTP_USE_TLS", "PUBLIC_BASE_URL", "CORS_ALLOWED_ORIGINS", "SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.Production)
	assert.True(t, cfg.UseVolatileStore())
	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, "bcrypt", cfg.PasswordScheme)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, defaultMailFrom, cfg.SMTPFrom)
	assert.Equal(t, "http://localhost:5000", cfg.PublicBaseURL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Production(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/shop?sslmode=disable")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com,")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production)
	assert.False(t, cfg.UseVolatileStore())
	assert.Equal(t, "postgres://u:p@db:5432/shop?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "https://api.example.com", cfg.PublicBaseURL)

	t.Setenv("USE_IN_MEMORY_DB", "true")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.UseVolatileStore())
}

func TestLoad_MongoURIAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MONGODB_URI", "mongodb://mongo:27017/kitchen")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://mongo:27017/kitchen", cfg.DatabaseURL)
}

func TestLoad_RejectsUnknownPasswordScheme(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PASSWORD_SCHEME", "md5")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SMTP_PORT", "abc")
	t.Setenv("USE_IN_MEMORY_DB", "maybe")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.False(t, cfg.UseInMemoryDB)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}
