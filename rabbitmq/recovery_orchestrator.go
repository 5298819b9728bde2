package rabbitmq

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// OrchestratorState is the Recovery Orchestrator's state machine, per
// spec.md §4.5: Running -> Reconnecting(attempt) -> Running | GivenUp,
// with UserClosed as a terminal state reachable from any of the above.
type OrchestratorState int32

const (
	OrchestratorRunning OrchestratorState = iota
	OrchestratorReconnecting
	OrchestratorGivenUp
	OrchestratorUserClosed
)

func (s OrchestratorState) String() string {
	switch s {
	case OrchestratorRunning:
		return "running"
	case OrchestratorReconnecting:
		return "reconnecting"
	case OrchestratorGivenUp:
		return "given_up"
	case OrchestratorUserClosed:
		return "user_closed"
	default:
		return "unknown"
	}
}

// ConnectionRecoveryError reports that a reconnect attempt failed, or that
// replaying one recorded entity failed during a reconnect (Err is then a
// *ReplayError and the rest of the replay continues). Emitted once per
// failed attempt and once per failed replay entry, never fatal by itself
// (spec.md §4.5).
type ConnectionRecoveryError struct {
	Attempt int
	Err     error
}

// RecoverySucceeded reports a completed reconnect + topology replay. Fired
// on the Connection before any Model's own RecoverySucceeded, per spec.md
// §4.5's ordering guarantee.
type RecoverySucceeded struct {
	Attempt int
	Renames []RenameEvent
}

// QueueNameChangeAfterRecovery / ConsumerTagChangeAfterRecovery report a
// single server-assigned-identity rewrite discovered during replay.
type QueueNameChangeAfterRecovery struct {
	Before, After string
}

type ConsumerTagChangeAfterRecovery struct {
	Before, After string
}

// RecoveryOrchestrator owns the reconnect loop for one logical connection:
// it keeps a live endpoint list, a network_recovery_interval backoff, and
// one TopologyRecorder that survives across every underlying Connection it
// creates. Grounded on the teacher's recoveryManager.recover()/recoverTopology()
// loop (recovery.go), generalized from a fixed attempt budget to the
// spec's unbounded-retry-until-UserClosed machine, and driven by the
// Recorder's keyed replay instead of the teacher's blind slice replay.
type RecoveryOrchestrator struct {
	factory   *ConnectionFactory
	endpoints []string // host:port strings; spec.md §4.5's endpoint-list iteration

	mu      sync.Mutex
	current *Connection
	state   atomic.Int32
	attempt atomic.Int32

	recorder *TopologyRecorder

	onError     func(ConnectionRecoveryError)
	onRecovered func(RecoverySucceeded)
	onQueueName func(QueueNameChangeAfterRecovery)
	onConsTag   func(ConsumerTagChangeAfterRecovery)

	metrics *PrometheusMetricsCollector // optional; nil means no gauge/counter updates
	log     zerolog.Logger

	closed chan struct{}
}

// NewRecoveryOrchestrator wraps an already-established Connection. endpoints
// is the list reconnectLoop cycles through on reconnect, one endpoint per
// attempt; it must contain at least the connection's own host:port.
func NewRecoveryOrchestrator(factory *ConnectionFactory, endpoints []string, initial *Connection) *RecoveryOrchestrator {
	o := &RecoveryOrchestrator{
		factory:   factory,
		endpoints: endpoints,
		current:   initial,
		recorder:  initial.recorder,
		log:       factory.logger(),
		closed:    make(chan struct{}),
	}
	o.state.Store(int32(OrchestratorRunning))
	if pc, ok := factory.MetricsCollector.(*PrometheusMetricsCollector); ok {
		o.metrics = pc
	}
	o.watch(initial)
	return o
}

// OnRecoveryError / OnRecoverySucceeded / OnQueueNameChange / OnConsumerTagChange
// register the orchestrator's event callbacks. Each accepts only one
// listener, matching the Connection/Channel NotifyClose idiom elsewhere in
// this package (swap, don't accumulate).
func (o *RecoveryOrchestrator) OnRecoveryError(fn func(ConnectionRecoveryError))          { o.onError = fn }
func (o *RecoveryOrchestrator) OnRecoverySucceeded(fn func(RecoverySucceeded))            { o.onRecovered = fn }
func (o *RecoveryOrchestrator) OnQueueNameChange(fn func(QueueNameChangeAfterRecovery))   { o.onQueueName = fn }
func (o *RecoveryOrchestrator) OnConsumerTagChange(fn func(ConsumerTagChangeAfterRecovery)) {
	o.onConsTag = fn
}

// State returns the orchestrator's current state.
func (o *RecoveryOrchestrator) State() OrchestratorState {
	return OrchestratorState(o.state.Load())
}

// Connection returns the underlying live Connection. It changes identity
// across a reconnect; callers that hold onto it across a recovery event
// should re-fetch rather than cache it (this is why RecoveringConnection
// exists as the stable-identity wrapper, see recovering.go).
func (o *RecoveryOrchestrator) Connection() *Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Close marks the orchestrator UserClosed (terminal, no further reconnects)
// and closes the current underlying Connection.
func (o *RecoveryOrchestrator) Close() error {
	o.state.Store(int32(OrchestratorUserClosed))
	close(o.closed)
	return o.Connection().Close()
}

// watch starts the goroutine that waits for conn's close signal and, unless
// the orchestrator has already gone UserClosed, begins reconnecting.
func (o *RecoveryOrchestrator) watch(conn *Connection) {
	go func() {
		ch := make(chan *Error, 1)
		conn.NotifyClose(ch)
		select {
		case <-ch:
		case <-o.closed:
			return
		}

		if o.State() == OrchestratorUserClosed {
			return
		}
		o.reconnectLoop()
	}()
}

// reconnectLoop is the Reconnecting(attempt) state: it retries forever,
// spaced by factory.RecoveryInterval, until either a connection succeeds
// (-> Running) or the orchestrator is closed out from under it (-> stop).
// spec.md §4.5 has no bounded attempt count; GivenUp exists as a state but
// is only entered transiently between attempts for event/metric purposes.
func (o *RecoveryOrchestrator) reconnectLoop() {
	o.state.Store(int32(OrchestratorReconnecting))
	o.setMetricState()

	lost := o.Connection()
	lost.notifyListeners(func(l ConnectionListener) { l.OnConnectionRecoveryStarted(lost) })
	if h := o.factory.RecoveryHandler; h != nil {
		h.OnRecoveryStarted(lost)
	}

	for {
		if o.State() == OrchestratorUserClosed {
			return
		}

		attempt := int(o.attempt.Add(1))
		if o.metrics != nil {
			o.metrics.RecoveryAttempts.Inc()
		}

		endpoint := o.endpoints[(attempt-1)%len(o.endpoints)]
		conn, err := o.dial(endpoint)
		if err != nil {
			o.log.Warn().Err(err).Int("attempt", attempt).Str("endpoint", endpoint).Msg("reconnect attempt failed")
			if o.onError != nil {
				o.onError(ConnectionRecoveryError{Attempt: attempt, Err: err})
			}
			if h := o.factory.RecoveryHandler; h != nil {
				h.OnRecoveryFailed(lost, err)
			}
			o.state.Store(int32(OrchestratorGivenUp))
			o.setMetricState()
			select {
			case <-time.After(o.factory.RecoveryInterval):
			case <-o.closed:
				return
			}
			o.state.Store(int32(OrchestratorReconnecting))
			o.setMetricState()
			continue
		}

		// Transplant the surviving Recorder and listener list onto the new
		// Connection before any Model method runs on it, then replay
		// recorded topology.
		conn.recorder = o.recorder
		conn.adoptListeners(lost)
		if h := o.factory.RecoveryHandler; h != nil {
			h.OnTopologyRecoveryStarted(conn)
		}
		renames, replayErrs := o.replay(conn)
		for _, re := range replayErrs {
			o.log.Warn().Err(re).Msg("topology replay entry failed")
			if o.onError != nil {
				o.onError(ConnectionRecoveryError{Attempt: attempt, Err: re})
			}
		}
		if h := o.factory.RecoveryHandler; h != nil {
			h.OnTopologyRecoveryCompleted(conn)
		}

		o.mu.Lock()
		o.current = conn
		o.mu.Unlock()

		o.state.Store(int32(OrchestratorRunning))
		o.setMetricState()

		conn.notifyListeners(func(l ConnectionListener) { l.OnConnectionRecoveryCompleted(conn) })
		if h := o.factory.RecoveryHandler; h != nil {
			h.OnRecoveryCompleted(conn)
		}
		if o.onRecovered != nil {
			o.onRecovered(RecoverySucceeded{Attempt: attempt, Renames: renames})
		}
		for _, r := range renames {
			switch r.Kind {
			case "queue":
				if o.onQueueName != nil {
					o.onQueueName(QueueNameChangeAfterRecovery{Before: r.Before, After: r.After})
				}
			case "consumer":
				if o.onConsTag != nil {
					o.onConsTag(ConsumerTagChangeAfterRecovery{Before: r.Before, After: r.After})
				}
			}
		}

		o.watch(conn)
		return
	}
}

// dial reconnects to endpoint, overriding the factory's Host/Port for the
// duration of one NewConnection call (spec.md §4.5's endpoint-list
// iteration on reconnect, vs. the single fixed address used on first
// connect).
func (o *RecoveryOrchestrator) dial(endpoint string) (*Connection, error) {
	host, port, err := splitHostPort(endpoint)
	if err != nil {
		return nil, err
	}

	cfCopy := *o.factory
	cfCopy.Host = host
	cfCopy.Port = port
	// The copy must dial exactly this endpoint, not re-run the original
	// factory's initial-connect endpoint list.
	cfCopy.Endpoints = nil

	ctx, cancel := context.WithTimeout(context.Background(), o.factory.ConnectionTimeout)
	defer cancel()
	return cfCopy.NewConnectionWithContext(ctx)
}

// replay opens a fresh channel on conn and replays the Recorder's topology
// onto it, per spec.md §4.4's fixed order. The channel is left open: it's
// the recovery channel the replayed consumers are now attached to.
func (o *RecoveryOrchestrator) replay(conn *Connection) ([]RenameEvent, []*ReplayError) {
	if !o.factory.TopologyRecovery {
		return nil, nil
	}
	ch, err := conn.NewChannel()
	if err != nil {
		return nil, []*ReplayError{{Kind: "channel", Name: "recovery", Err: err}}
	}
	return o.recorder.Replay(ch)
}

func (o *RecoveryOrchestrator) setMetricState() {
	if o.metrics == nil {
		return
	}
	o.metrics.SetRecoveryState(o.State().String(), []string{
		OrchestratorRunning.String(), OrchestratorReconnecting.String(),
		OrchestratorGivenUp.String(), OrchestratorUserClosed.String(),
	})
}

func splitHostPort(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return host, port, nil
}
