package rabbitmq

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NewConnectionFactoryFromEnv builds a ConnectionFactory from a .env file (if
// present) and AMQP_* environment variables, falling back to
// NewConnectionFactory's defaults for anything unset. Environment variables
// take priority over the .env file, which takes priority over defaults.
//
// Recognized variables: AMQP_HOST, AMQP_PORT, AMQP_VHOST, AMQP_USERNAME,
// AMQP_PASSWORD, AMQP_HEARTBEAT_SECONDS, AMQP_CHANNEL_MAX, AMQP_FRAME_MAX,
// AMQP_CONNECTION_TIMEOUT_SECONDS, AMQP_AUTOMATIC_RECOVERY,
// AMQP_TOPOLOGY_RECOVERY, AMQP_RECOVERY_INTERVAL_SECONDS,
// AMQP_CONNECTION_RETRY_ATTEMPTS.
func NewConnectionFactoryFromEnv(extra ...FactoryOption) *ConnectionFactory {
	_ = godotenv.Load()

	opts := []FactoryOption{
		WithHost(getEnv("AMQP_HOST", "localhost")),
		WithPort(getEnvAsInt("AMQP_PORT", 5672)),
		WithVHost(getEnv("AMQP_VHOST", "/")),
		WithCredentials(getEnv("AMQP_USERNAME", "guest"), getEnv("AMQP_PASSWORD", "guest")),
		WithHeartbeat(getEnvAsSeconds("AMQP_HEARTBEAT_SECONDS", 10*time.Second)),
		WithChannelMax(getEnvAsUint16("AMQP_CHANNEL_MAX", 0)),
		WithFrameMax(getEnvAsUint32("AMQP_FRAME_MAX", 0)),
		WithConnectionTimeout(getEnvAsSeconds("AMQP_CONNECTION_TIMEOUT_SECONDS", 60*time.Second)),
		WithAutomaticRecovery(getEnvAsBool("AMQP_AUTOMATIC_RECOVERY", false)),
		WithTopologyRecovery(getEnvAsBool("AMQP_TOPOLOGY_RECOVERY", true)),
		WithRecoveryInterval(getEnvAsSeconds("AMQP_RECOVERY_INTERVAL_SECONDS", 5*time.Second)),
		WithConnectionRetryAttempts(getEnvAsInt("AMQP_CONNECTION_RETRY_ATTEMPTS", 3)),
	}

	opts = append(opts, extra...)
	return NewConnectionFactory(opts...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		fmt.Printf("rabbitmq: invalid bool for %s: %s, using default %v\n", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		fmt.Printf("rabbitmq: invalid int for %s: %s, using default %d\n", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsUint16(key string, defaultValue uint16) uint16 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseUint(valueStr, 10, 16)
	if err != nil {
		fmt.Printf("rabbitmq: invalid uint16 for %s: %s, using default %d\n", key, valueStr, defaultValue)
		return defaultValue
	}
	return uint16(value)
}

func getEnvAsUint32(key string, defaultValue uint32) uint32 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseUint(valueStr, 10, 32)
	if err != nil {
		fmt.Printf("rabbitmq: invalid uint32 for %s: %s, using default %d\n", key, valueStr, defaultValue)
		return defaultValue
	}
	return uint32(value)
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(valueStr)
	if err != nil {
		fmt.Printf("rabbitmq: invalid seconds value for %s: %s, using default %v\n", key, valueStr, defaultValue)
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
