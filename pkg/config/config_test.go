package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "GUIA", cfg.TISS.GuidePrefix)
	assert.Equal(t, 3, cfg.TISS.DefaultAttempts)
	assert.Equal(t, time.Second, cfg.TISS.DefaultBackoff)
	assert.Equal(t, 30, cfg.TISS.AppealWindowDays)
	assert.InDelta(t, 1.5, cfg.TISS.AlertMultiple, 1e-9)
	assert.Equal(t, 1000, cfg.Notifications.StoreSize)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
}

func TestFromViper_Valores(t *testing.T) {
	v := viper.New()
	v.Set("TISS_WS_BACKOFF_BASE", "250ms")
	v.Set("TISS_WS_TIMEOUT", "5")
	v.Set("TISS_ALERT_MULTIPLE", "2.25")
	v.Set("TISS_SANDBOX", "true")
	v.Set("DB_PORT", "6543")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.TISS.DefaultBackoff)
	assert.Equal(t, 5*time.Second, cfg.TISS.DefaultTimeout, "entero = segundos")
	assert.InDelta(t, 2.25, cfg.TISS.AlertMultiple, 1e-9)
	assert.True(t, cfg.TISS.SandboxOperators)
	assert.Equal(t, 6543, cfg.DB.Port)
}

func TestFromViper_IntentosInvalidos(t *testing.T) {
	v := viper.New()
	v.Set("TISS_WS_RETRY_ATTEMPTS", "0")
	_, err := fromViper(v)
	assert.Error(t, err)
}

func TestDBConfig_DSNEscapaPassword(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", DBName: "claims", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/claims?sslmode=disable", c.DSN())
}
