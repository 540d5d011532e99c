package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("DB_DSN", "")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, gormlogger.Warn, cfg.DB.LogLevel)
	assert.True(t, cfg.Bootstrap.DirectorMaxDiscount.Equal(decimal.NewFromInt(30)))
	assert.Contains(t, cfg.DB.GetDSN(), "dbname=sales_crm")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://crm@db/crm")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_LOG_LEVEL", "silent")
	t.Setenv("DEFAULT_DIRECTOR_COMMISSION", "2.5")

	cfg := LoadConfig()

	assert.Equal(t, "postgres://crm@db/crm", cfg.DB.GetDSN())
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 7, cfg.DB.MaxOpenConns)
	assert.Equal(t, gormlogger.Silent, cfg.DB.LogLevel)
	assert.True(t, cfg.Bootstrap.DirectorCommission.Equal(decimal.RequireFromString("2.5")))
}
