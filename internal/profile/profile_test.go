package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() *Profile {
	p := &Profile{Mode: "dev"}
	p.FromEnv()
	return p
}

func TestProfile_Validate(t *testing.T) {
	t.Run("DefaultsAreValid", func(t *testing.T) {
		p := validProfile()
		require.NoError(t, p.Validate())
		assert.Equal(t, "memory", p.Driver)
	})

	t.Run("TimeoutMustBeLessThanInterval", func(t *testing.T) {
		p := validProfile()
		p.HealthCheckInterval = 5 * time.Second
		p.HealthCheckTimeout = 5 * time.Second
		assert.Error(t, p.Validate())
	})

	t.Run("RetryAttemptsAtLeastOne", func(t *testing.T) {
		p := validProfile()
		p.HealthRetryAttempts = 0
		assert.Error(t, p.Validate())
	})

	t.Run("UnknownStrategy", func(t *testing.T) {
		p := validProfile()
		p.BalancerStrategy = "random"
		assert.Error(t, p.Validate())
	})

	t.Run("SqliteRequiresDSN", func(t *testing.T) {
		p := validProfile()
		p.Driver = "sqlite"
		assert.Error(t, p.Validate())

		p.DSN = "file:sellwise.db"
		assert.NoError(t, p.Validate())
	})

	t.Run("UnknownModeFallsBackToDemo", func(t *testing.T) {
		p := validProfile()
		p.Mode = "staging"
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})
}
