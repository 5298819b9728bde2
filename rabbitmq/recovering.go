package rabbitmq

import (
	"context"
	"sync"
	"sync/atomic"
)

// RecoveringConnection is a stable-identity handle over a Connection whose
// underlying identity changes across reconnects. Spec.md §4.6 and the
// "cold event" rule in §9: a caller that holds a RecoveringConnection
// across a recovery event keeps working against the same Go value, and its
// own NotifyClose/NotifyBlocked listeners get re-attached to each new
// underlying Connection automatically rather than firing once and going
// silent. No teacher analog exists for this wrapper layer (recovery.go
// mutates the live Connection in place instead); built in the teacher's
// concurrency idiom: atomic.Bool for is_open, a plain mutex for the
// listener lists.
type RecoveringConnection struct {
	orchestrator *RecoveryOrchestrator

	mu              sync.Mutex
	closeListeners  []chan *Error
	blockListeners  []chan BlockedNotification
	models          []*RecoveringModel

	userClosed atomic.Bool
}

// NewRecoveringConnection wraps an orchestrator in the stable-identity
// handle applications should hold onto across reconnects.
func NewRecoveringConnection(o *RecoveryOrchestrator) *RecoveringConnection {
	rc := &RecoveringConnection{orchestrator: o}
	prev := o.onRecovered
	o.OnRecoverySucceeded(func(e RecoverySucceeded) {
		rc.reattach()
		if prev != nil {
			prev(e)
		}
	})
	return rc
}

// IsOpen reports true iff the orchestrator has not been permanently closed
// by the application and the current underlying Connection is open. During
// a reconnect window (OrchestratorReconnecting/GivenUp) this is false, even
// though the RecoveringConnection itself remains usable once recovery
// finishes.
func (rc *RecoveringConnection) IsOpen() bool {
	if rc.userClosed.Load() {
		return false
	}
	if rc.orchestrator.State() != OrchestratorRunning {
		return false
	}
	return rc.orchestrator.Connection().GetState() == ConnOpen
}

// Underlying returns the live Connection at this instant. Do not cache the
// result across a recovery event; re-call Underlying() instead, or use
// NewChannel/NotifyClose below which always resolve against the current one.
func (rc *RecoveringConnection) Underlying() *Connection {
	return rc.orchestrator.Connection()
}

// NewChannel opens a RecoveringModel bound to this connection's current
// underlying Connection. The returned handle keeps working across future
// reconnects; spec.md §4.6 ("Recovering Model").
func (rc *RecoveringConnection) NewChannel() (*RecoveringModel, error) {
	return rc.NewChannelWithContext(context.Background())
}

func (rc *RecoveringConnection) NewChannelWithContext(ctx context.Context) (*RecoveringModel, error) {
	if rc.userClosed.Load() {
		return nil, ErrObjectDisposed
	}

	ch, err := rc.orchestrator.Connection().NewChannelWithContext(ctx)
	if err != nil {
		return nil, err
	}
	rm := &RecoveringModel{conn: rc, channel: ch}
	rc.mu.Lock()
	rc.models = append(rc.models, rm)
	rc.mu.Unlock()
	return rm, nil
}

// Close permanently closes the connection: no further reconnects are
// attempted after this (mirrors the Orchestrator's UserClosed terminal
// state, spec.md §4.5). Every listener registered through NotifyClose is
// notified with the resulting error (nil on a clean close).
func (rc *RecoveringConnection) Close() error {
	rc.userClosed.Store(true)
	err := rc.orchestrator.Close()

	rc.mu.Lock()
	listeners := rc.closeListeners
	rc.mu.Unlock()

	var amqpErr *Error
	if err != nil {
		amqpErr = NewError(0, err.Error(), true)
	}
	for _, l := range listeners {
		select {
		case l <- amqpErr:
		default:
		}
	}

	return err
}

// NotifyClose registers ch to receive the close error from whichever
// underlying Connection is current at the time recovery finally gives up
// permanently (i.e. the application itself called Close). Unlike the raw
// Connection.NotifyClose, this does not fire on every transient reconnect.
func (rc *RecoveringConnection) NotifyClose(ch chan *Error) chan *Error {
	rc.mu.Lock()
	rc.closeListeners = append(rc.closeListeners, ch)
	rc.mu.Unlock()
	return ch
}

// NotifyBlocked re-subscribes ch to each successive underlying Connection's
// blocked/unblocked notifications across reconnects.
func (rc *RecoveringConnection) NotifyBlocked(ch chan BlockedNotification) chan BlockedNotification {
	rc.mu.Lock()
	rc.blockListeners = append(rc.blockListeners, ch)
	rc.mu.Unlock()
	rc.orchestrator.Connection().NotifyBlocked(ch)
	return ch
}

// reattach re-subscribes every registered blocked-listener to the new
// underlying Connection and re-points every live RecoveringModel at its
// freshly recreated Channel. Called from the orchestrator's
// RecoverySucceeded hook, before a handler that was registered on the
// orchestrator ahead of NewRecoveringConnection. The orchestrator keeps a
// single RecoverySucceeded listener, so a handler registered on it after
// NewRecoveringConnection replaces this hook.
func (rc *RecoveringConnection) reattach() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	conn := rc.orchestrator.Connection()
	for _, ch := range rc.blockListeners {
		conn.NotifyBlocked(ch)
	}
	for _, m := range rc.models {
		m.reattach(conn)
	}
}

// RecoveringModel is the Model-level counterpart to RecoveringConnection:
// a stable handle whose underlying *Channel is recreated and re-pointed
// after each reconnect. Per spec.md §4.6, consumers attached through a
// RecoveringModel keep receiving deliveries under the same Go handle even
// though their AMQP channel number may differ after recovery.
type RecoveringModel struct {
	conn *RecoveringConnection

	mu      sync.Mutex
	channel *Channel
}

// Underlying returns the live *Channel. As with RecoveringConnection,
// don't cache this across a reconnect.
func (rm *RecoveringModel) Underlying() *Channel {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.channel
}

// IsOpen reports whether both the owning connection and this model's
// current channel are open.
func (rm *RecoveringModel) IsOpen() bool {
	if !rm.conn.IsOpen() {
		return false
	}
	return rm.Underlying().GetState() == ChanOpen
}

// reattach replaces rm's channel with a freshly opened one on the
// recovered connection. The Topology Recorder's Replay (run by the
// orchestrator before this fires) has already re-issued this model's
// consumers on a recovery channel it opened itself; this just gives the
// RecoveringModel a live *Channel of its own to issue new commands on.
func (rm *RecoveringModel) reattach(conn *Connection) {
	ch, err := conn.NewChannel()
	if err != nil {
		return
	}
	rm.mu.Lock()
	rm.channel = ch
	rm.mu.Unlock()
}
