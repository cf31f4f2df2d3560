package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("SMS_WEBHOOK_TOKEN", "webhook-token-0123456789")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadProductionConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := LoadProductionConfig()
		require.NoError(t, err)
		assert.Equal(t, 0.65, cfg.SMS.ConfidenceThreshold)
		assert.Equal(t, 24*time.Hour, cfg.SMS.Lookback())
		assert.True(t, cfg.SMS.AutoSettle)
		assert.Equal(t, 3, cfg.Queue.MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.Queue.BackoffBase)
		assert.Equal(t, "gpt-4o-mini", cfg.Parser.Model)
		assert.True(t, cfg.Deployment.IsProduction())
	})

	t.Run("Overrides", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SMS_CONFIDENCE_THRESHOLD", "0.8")
		t.Setenv("SMS_LOOKBACK_MINUTES", "90")
		t.Setenv("SMS_AUTO_SETTLE", "false")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
		t.Setenv("QUEUE_BACKOFF_BASE", "500ms")

		cfg, err := LoadProductionConfig()
		require.NoError(t, err)
		assert.Equal(t, 0.8, cfg.SMS.ConfidenceThreshold)
		assert.Equal(t, 90*time.Minute, cfg.SMS.Lookback())
		assert.False(t, cfg.SMS.AutoSettle)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
		assert.Equal(t, 500*time.Millisecond, cfg.Queue.BackoffBase)
	})

	t.Run("MalformedValuesFallBack", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("QUEUE_CONCURRENCY", "many")
		t.Setenv("SMS_AUTO_SETTLE", "perhaps")

		cfg, err := LoadProductionConfig()
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Queue.Concurrency)
		assert.True(t, cfg.SMS.AutoSettle)
	})

	t.Run("ModelDisabledNeedsNoKey", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("PARSER_MODEL_ENABLED", "false")

		_, err := LoadProductionConfig()
		assert.NoError(t, err)
	})
}

func TestValidateProductionConfig(t *testing.T) {
	valid := func(t *testing.T) *ProductionConfig {
		setRequiredEnv(t)
		cfg, err := LoadProductionConfig()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ProductionConfig)
		message string
	}{
		{"ShortWebhookToken", func(c *ProductionConfig) { c.SMS.WebhookToken = "short" }, "SMS_WEBHOOK_TOKEN"},
		{"ThresholdAboveOne", func(c *ProductionConfig) { c.SMS.ConfidenceThreshold = 1.2 }, "SMS_CONFIDENCE_THRESHOLD"},
		{"LookbackTooLong", func(c *ProductionConfig) { c.SMS.LookbackMinutes = 10081 }, "SMS_LOOKBACK_MINUTES"},
		{"ShortJWTSecret", func(c *ProductionConfig) { c.JWT.SecretKey = "short" }, "JWT_SECRET_KEY"},
		{"RSAWithoutPublicKey", func(c *ProductionConfig) { c.JWT.UseRSAKeys = true }, "JWT_PUBLIC_KEY"},
		{"MissingModelKey", func(c *ProductionConfig) { c.Parser.APIKey = "" }, "OPENAI_API_KEY"},
		{"ZeroConcurrency", func(c *ProductionConfig) { c.Queue.Concurrency = 0 }, "QUEUE_CONCURRENCY"},
		{"UnknownLogLevel", func(c *ProductionConfig) { c.Logging.Level = "trace" }, "LOG_LEVEL"},
		{"UnknownLogOutput", func(c *ProductionConfig) { c.Logging.Output = "syslog" }, "LOG_OUTPUT"},
		{"CacheDisabled", func(c *ProductionConfig) { c.Cache.Enabled = false }, "CACHE_ENABLED"},
		{"MissingDBPasswordInProduction", func(c *ProductionConfig) { c.Database.Password = "" }, "DB_PASSWORD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)

			err := ValidateProductionConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	t.Run("CollectsEveryProblem", func(t *testing.T) {
		cfg := valid(t)
		cfg.SMS.WebhookToken = ""
		cfg.Queue.MaxAttempts = 0

		err := ValidateProductionConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SMS_WEBHOOK_TOKEN")
		assert.Contains(t, err.Error(), "QUEUE_MAX_ATTEMPTS")
	})

	t.Run("PasswordOptionalOutsideProduction", func(t *testing.T) {
		cfg := valid(t)
		cfg.Deployment.Environment = "development"
		cfg.Database.Password = ""

		assert.NoError(t, ValidateProductionConfig(cfg))
	})
}

func TestDatabaseConfigURL(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, Name: "momo", User: "app", Password: "pw", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:pw@db:5432/momo?sslmode=disable", db.URL())
	assert.Contains(t, db.DSN(), "dbname=momo")
	assert.Contains(t, db.DSN(), "TimeZone=UTC")
}
