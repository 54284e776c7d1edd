package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAdminKey(t *testing.T) {
	t.Setenv("ADMIN_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ADMIN_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, DriverDynamo, cfg.StoreDriver)
	assert.Equal(t, "devicegate_users", cfg.UsersTable)
	assert.Equal(t, "devicegate_auth_logs", cfg.AuthLogsTable)
	assert.Equal(t, "devicegate_activity_logs", cfg.ActivityLogsTable)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("ADMIN_KEY", "secret")
	t.Setenv("STORE_DRIVER", "cassandra")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMemoryDriver(t *testing.T) {
	t.Setenv("ADMIN_KEY", "secret")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
}
