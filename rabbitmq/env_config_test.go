package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConnectionFactoryFromEnvDefaults(t *testing.T) {
	cf := NewConnectionFactoryFromEnv()

	assert.Equal(t, "localhost", cf.Host)
	assert.Equal(t, 5672, cf.Port)
	assert.Equal(t, "/", cf.VHost)
	assert.Equal(t, "guest", cf.Username)
	assert.True(t, cf.TopologyRecovery)
}

func TestNewConnectionFactoryFromEnvOverrides(t *testing.T) {
	t.Setenv("AMQP_HOST", "rabbit.internal")
	t.Setenv("AMQP_PORT", "5673")
	t.Setenv("AMQP_USERNAME", "alice")
	t.Setenv("AMQP_PASSWORD", "secret")
	t.Setenv("AMQP_TOPOLOGY_RECOVERY", "false")
	t.Setenv("AMQP_RECOVERY_INTERVAL_SECONDS", "2")

	cf := NewConnectionFactoryFromEnv()

	assert.Equal(t, "rabbit.internal", cf.Host)
	assert.Equal(t, 5673, cf.Port)
	assert.Equal(t, "alice", cf.Username)
	assert.Equal(t, "secret", cf.Password)
	assert.False(t, cf.TopologyRecovery)
	assert.Equal(t, 2*time.Second, cf.RecoveryInterval)
}

func TestNewConnectionFactoryFromEnvExtraOptionsWinOverEnv(t *testing.T) {
	t.Setenv("AMQP_HOST", "rabbit.internal")

	cf := NewConnectionFactoryFromEnv(WithHost("override.internal"))

	assert.Equal(t, "override.internal", cf.Host)
}
