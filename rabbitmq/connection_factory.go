package rabbitmq

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConnectionFactory creates and configures AMQP connections
type ConnectionFactory struct {
	// Connection settings
	Host     string
	Port     int
	VHost    string
	Username string
	Password string

	// Endpoints, when non-empty, is a list of "host:port" addresses tried
	// in order on initial connect (spec.md §8 scenario S1): the client
	// dials each in turn and keeps the first that accepts a connection.
	// Host/Port are still used as the sole target when Endpoints is empty,
	// and by RecoveryOrchestrator, which dials one endpoint at a time
	// itself.
	Endpoints []string

	// TLS configuration
	TLS *tls.Config

	// Timeouts
	ConnectionTimeout time.Duration
	HandshakeTimeout  time.Duration

	// AMQP parameters
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  time.Duration

	// Recovery settings
	AutomaticRecovery       bool
	TopologyRecovery        bool
	RecoveryInterval        time.Duration
	ConnectionRetryAttempts int

	// Client properties sent to server
	ClientProperties map[string]interface{}

	// Custom handlers
	ErrorHandler    ErrorHandler
	RecoveryHandler RecoveryHandler
	BlockedHandler  BlockedHandler

	// Logger is the pluggable user-facing sink (matches the teacher's
	// ErrorHandler/Logger boundary). Internal library logging (recovery
	// attempts, replay failures) goes through zerolog regardless of whether
	// Logger is set.
	Logger Logger

	// ZerologLogger overrides the zerolog.Logger used for internal
	// logging. Defaults to a console writer on stderr at info level.
	ZerologLogger *zerolog.Logger

	// MetricsCollector is consulted only by the RecoveryOrchestrator, and
	// only when it is a *PrometheusMetricsCollector: it then receives the
	// recovery attempt counter and recovery state gauge. Connections and
	// channels do not report to it.
	MetricsCollector MetricsCollector
}

// logger returns the zerolog.Logger the factory's Connections log through.
func (cf *ConnectionFactory) logger() zerolog.Logger {
	if cf.ZerologLogger != nil {
		return *cf.ZerologLogger
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// RecoveryHandler receives recovery events
type RecoveryHandler interface {
	OnRecoveryStarted(conn *Connection)
	OnRecoveryCompleted(conn *Connection)
	OnRecoveryFailed(conn *Connection, err error)
	OnTopologyRecoveryStarted(conn *Connection)
	OnTopologyRecoveryCompleted(conn *Connection)
}

// BlockedHandler receives connection blocked/unblocked events
type BlockedHandler interface {
	OnBlocked(conn *Connection, reason string)
	OnUnblocked(conn *Connection)
}

// NewConnectionFactory creates a new ConnectionFactory with sensible defaults
func NewConnectionFactory(opts ...FactoryOption) *ConnectionFactory {
	cf := &ConnectionFactory{
		Host:                    "localhost",
		Port:                    5672,
		VHost:                   "/",
		Username:                "guest",
		Password:                "guest",
		ConnectionTimeout:       60 * time.Second,
		HandshakeTimeout:        10 * time.Second,
		Heartbeat:               10 * time.Second,
		ChannelMax:              0, // 0 = no limit (server decides)
		FrameMax:                0, // 0 = no limit (server decides)
		AutomaticRecovery:       false,
		TopologyRecovery:        true,
		RecoveryInterval:        5 * time.Second,
		ConnectionRetryAttempts: 3,
		ClientProperties:        defaultClientProperties(),
	}

	// Apply options
	for _, opt := range opts {
		opt(cf)
	}

	// Set default error handler if not provided
	if cf.ErrorHandler == nil {
		cf.ErrorHandler = &DefaultErrorHandler{Logger: cf.Logger}
	}

	return cf
}

// NewConnection creates a new connection using the factory settings
func (cf *ConnectionFactory) NewConnection() (*Connection, error) {
	return cf.NewConnectionWithContext(context.Background())
}

// NewConnectionWithContext creates a new connection with context support
func (cf *ConnectionFactory) NewConnectionWithContext(ctx context.Context) (*Connection, error) {
	// Create connection with timeout
	connCtx, cancel := context.WithTimeout(ctx, cf.ConnectionTimeout)
	defer cancel()

	// Establish TCP or TLS connection, trying every configured endpoint in
	// order until one is reachable (spec.md §8 S1).
	netConn, err := cf.dialEndpoints(connCtx)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	// Create connection object
	conn := &Connection{
		factory:     cf,
		conn:        netConn,
		closeChan:   make(chan *Error, 1),
		blockedChan: make(chan BlockedNotification, 1),
		recorder:    NewTopologyRecorder(cf.TopologyRecovery, cf.logger()),
	}
	conn.state.Store(int32(StateConnecting))

	// Perform AMQP handshake
	if err := conn.handshake(ctx); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	// Start background goroutines
	conn.start()

	return conn, nil
}

// dialEndpoints tries cf.Endpoints in order, returning the first successful
// connection. With no Endpoints configured it falls back to cf.Host:cf.Port,
// the single-target behavior every caller had before S1 existed.
func (cf *ConnectionFactory) dialEndpoints(ctx context.Context) (net.Conn, error) {
	endpoints := cf.Endpoints
	if len(endpoints) == 0 {
		endpoints = []string{fmt.Sprintf("%s:%d", cf.Host, cf.Port)}
	}

	var errs []error
	for _, endpoint := range endpoints {
		netConn, err := cf.dialAddr(ctx, endpoint)
		if err == nil {
			return netConn, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
	}

	return nil, errors.Join(errs...)
}

// dialAddr establishes a single TCP or TLS connection to addr.
func (cf *ConnectionFactory) dialAddr(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: cf.ConnectionTimeout,
	}

	if cf.TLS != nil {
		return tls.DialWithDialer(dialer, "tcp", addr, cf.TLS)
	}

	return dialer.DialContext(ctx, "tcp", addr)
}

// Validate validates the ConnectionFactory configuration
func (cf *ConnectionFactory) Validate() error {
	// Validate host
	if cf.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	// Validate port
	if cf.Port <= 0 || cf.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cf.Port)
	}

	// Validate VHost
	if cf.VHost == "" {
		return fmt.Errorf("vhost cannot be empty")
	}

	// Validate username
	if cf.Username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	// Validate timeouts
	if cf.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout cannot be negative, got %v", cf.ConnectionTimeout)
	}
	if cf.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout cannot be negative, got %v", cf.HandshakeTimeout)
	}

	// Validate heartbeat (0 means disabled, which is valid)
	if cf.Heartbeat < 0 {
		return fmt.Errorf("heartbeat cannot be negative, got %v", cf.Heartbeat)
	}

	// Validate frame max (0 means server decides, 4096 is minimum per AMQP spec)
	if cf.FrameMax != 0 && cf.FrameMax < 4096 {
		return fmt.Errorf("frame max must be 0 or >= 4096, got %d", cf.FrameMax)
	}

	// Validate recovery interval
	if cf.RecoveryInterval < 0 {
		return fmt.Errorf("recovery interval cannot be negative, got %v", cf.RecoveryInterval)
	}

	// Validate retry attempts
	if cf.ConnectionRetryAttempts < 0 {
		return fmt.Errorf("connection retry attempts cannot be negative, got %d", cf.ConnectionRetryAttempts)
	}

	return nil
}

// defaultClientProperties returns default client properties, including a
// generated connection_name so the broker's management UI and server logs
// can tell concurrent connections from this process apart.
func defaultClientProperties() map[string]interface{} {
	// Use flat structure to avoid nested map encoding issues
	return map[string]interface{}{
		"product":         "RabbitMQ Go Client",
		"version":         "1.0.0",
		"platform":        "Go",
		"connection_name": "amqp-go-" + uuid.NewString(),
		// Capabilities as flat properties
		"capabilities.publisher_confirms":           true,
		"capabilities.exchange_exchange_bindings":   true,
		"capabilities.basic.nack":                   true,
		"capabilities.consumer_cancel_notify":       true,
		"capabilities.connection.blocked":           true,
		"capabilities.authentication_failure_close": true,
	}
}
