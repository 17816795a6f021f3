package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, RoundingEqual, cfg.LiabilityRounding)
	assert.Equal(t, 3, cfg.MaxActiveGuarantees)
	assert.Equal(t, "0.3", cfg.CreditLimitSalaryShare.String())
	assert.Equal(t, 4, cfg.Mpesa.TokenAttempts)
	assert.Equal(t, time.Second, cfg.Mpesa.TokenBaseDelay)
	require.NotNil(t, cfg.Location)
	assert.Equal(t, "Africa/Nairobi", cfg.Location.String())
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("LIABILITY_ROUNDING", RoundingRemainderToLast)
	t.Setenv("MAX_ACTIVE_GUARANTEES", "5")
	t.Setenv("MPESA_TOKEN_BASE_DELAY", "250ms")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, RoundingRemainderToLast, cfg.LiabilityRounding)
	assert.Equal(t, 5, cfg.MaxActiveGuarantees)
	assert.Equal(t, 250*time.Millisecond, cfg.Mpesa.TokenBaseDelay)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestNewConfig_Invalid(t *testing.T) {
	t.Run("unknown rounding policy", func(t *testing.T) {
		t.Setenv("LIABILITY_ROUNDING", "banker")
		_, err := NewConfig()
		assert.Error(t, err)
	})

	t.Run("unknown timezone", func(t *testing.T) {
		t.Setenv("TIMEZONE", "Mars/Olympus")
		_, err := NewConfig()
		assert.Error(t, err)
	})

	t.Run("empty db conn", func(t *testing.T) {
		t.Setenv("DB_CONN", "")
		_, err := NewConfig()
		assert.EqualError(t, err, "DB_CONN is required")
	})
}
