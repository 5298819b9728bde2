package rabbitmq

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaymq/amqp-go/internal/frame"
	"github.com/relaymq/amqp-go/internal/protocol"
)

// Connection represents an AMQP connection
type Connection struct {
	factory *ConnectionFactory
	conn    net.Conn

	// Frame I/O
	frameReader *frame.Reader
	frameWriter *frame.Writer

	// Channels (Session Table, spec.md §2)
	table *sessionTable

	// Connection parameters (negotiated)
	channelMax uint16
	frameMax   uint32
	heartbeat  time.Duration

	// State
	state     atomic.Int32
	closeOnce sync.Once
	closeChan chan *Error
	closed    chan struct{}

	// Blocked notifications
	blockedChan chan BlockedNotification
	blocked     atomic.Bool

	// Heartbeat
	lastActivity    atomic.Int64 // Unix timestamp
	heartbeatStop   chan struct{}
	heartbeatDone   chan struct{}

	// Frame dispatch
	dispatchStop chan struct{}
	dispatchDone chan struct{}

	// Recovery
	recorder     *TopologyRecorder
	orchestrator *RecoveryOrchestrator

	// Listeners
	listenerMux sync.RWMutex
	listeners   []ConnectionListener
}

// BlockedNotification represents a connection blocked/unblocked event
type BlockedNotification struct {
	Blocked bool
	Reason  string
}

// ConnectionListener receives connection lifecycle events
type ConnectionListener interface {
	OnConnectionCreated(conn *Connection)
	OnConnectionClosed(conn *Connection, err error)
	OnConnectionRecoveryStarted(conn *Connection)
	OnConnectionRecoveryCompleted(conn *Connection)
	OnConnectionBlocked(conn *Connection, reason string)
	OnConnectionUnblocked(conn *Connection)
}

// handshake performs the AMQP connection handshake
func (c *Connection) handshake(ctx context.Context) error {
	c.frameReader = frame.NewReader(c.conn, protocol.FrameMinSize)
	c.frameWriter = frame.NewWriter(c.conn, protocol.FrameMinSize)

	// Send protocol header
	if err := c.frameWriter.WriteProtocolHeader(); err != nil {
		return fmt.Errorf("write protocol header: %w", err)
	}

	// Wait for Connection.Start
	startFrame, err := c.frameReader.ReadFrame()
	if err != nil {
		return fmt.Errorf("read start frame: %w", err)
	}

	if err := c.handleConnectionStart(startFrame); err != nil {
		return fmt.Errorf("handle start: %w", err)
	}

	// Send Connection.StartOk
	if err := c.sendConnectionStartOk(); err != nil {
		return fmt.Errorf("send start-ok: %w", err)
	}

	// Wait for Connection.Tune
	tuneFrame, err := c.frameReader.ReadFrame()
	if err != nil {
		return fmt.Errorf("read tune frame: %w", err)
	}

	if err := c.handshakeRejected(tuneFrame); err != nil {
		return err
	}

	if err := c.handleConnectionTune(tuneFrame); err != nil {
		return fmt.Errorf("handle tune: %w", err)
	}

	// Send Connection.TuneOk
	if err := c.sendConnectionTuneOk(); err != nil {
		return fmt.Errorf("send tune-ok: %w", err)
	}

	// Send Connection.Open
	if err := c.sendConnectionOpen(); err != nil {
		return fmt.Errorf("send open: %w", err)
	}

	// Wait for Connection.OpenOk
	openOkFrame, err := c.frameReader.ReadFrame()
	if err != nil {
		return fmt.Errorf("read open-ok frame: %w", err)
	}

	if err := c.handleConnectionOpenOk(openOkFrame); err != nil {
		return fmt.Errorf("handle open-ok: %w", err)
	}

	return nil
}

// handleConnectionStart processes Connection.Start method
func (c *Connection) handleConnectionStart(f *frame.Frame) error {
	method, err := f.ParseMethod()
	if err != nil {
		return err
	}

	if method.ClassID != protocol.ClassConnection || method.MethodID != protocol.MethodConnectionStart {
		return fmt.Errorf("expected Connection.Start, got %d.%d", method.ClassID, method.MethodID)
	}

	// Parse arguments
	args := frame.NewMethodArgs(method.Args)
	versionMajor, _ := args.ReadUint8()
	versionMinor, _ := args.ReadUint8()
	_, _ = args.ReadTable() // server-properties
	_, _ = args.ReadLongString() // mechanisms
	_, _ = args.ReadLongString() // locales

	// Validate version
	if versionMajor != 0 || versionMinor != 9 {
		return ErrProtocolVersionMismatch
	}

	return nil
}

// handshakeRejected checks whether f is a Connection.Close sent in place of
// the method the handshake was expecting -- the shape a broker uses to
// reject SASL PLAIN credentials in Connection.StartOk, per spec.md §4.1. If
// so it returns ErrAuthenticationFailure (the server's reply text is not
// attached), otherwise it returns nil so the caller proceeds to its normal
// parse.
func (c *Connection) handshakeRejected(f *frame.Frame) error {
	method, err := f.ParseMethod()
	if err != nil || method.ClassID != protocol.ClassConnection || method.MethodID != protocol.MethodConnectionClose {
		return nil
	}

	args := frame.NewMethodArgs(method.Args)
	replyCode, _ := args.ReadUint16()
	replyText, _ := args.ReadShortString()

	builder := frame.NewMethodArgsBuilder()
	closeOk := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionCloseOk, builder.Bytes())
	c.frameWriter.WriteFrame(closeOk)

	if int(replyCode) == protocol.ReplyAccessRefused {
		return ErrAuthenticationFailure
	}
	return NewError(int(replyCode), replyText, true)
}

// sendConnectionStartOk sends Connection.StartOk method
func (c *Connection) sendConnectionStartOk() error {
	builder := frame.NewMethodArgsBuilder()

	// Client properties
	if err := builder.WriteTable(c.factory.ClientProperties); err != nil {
		return err
	}

	// Mechanism (PLAIN)
	if err := builder.WriteShortString("PLAIN"); err != nil {
		return err
	}

	// Response (username + password)
	response := fmt.Sprintf("\x00%s\x00%s", c.factory.Username, c.factory.Password)
	if err := builder.WriteLongString([]byte(response)); err != nil {
		return err
	}

	// Locale
	if err := builder.WriteShortString("en_US"); err != nil {
		return err
	}

	// Create and send frame
	f := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionStartOk, builder.Bytes())
	return c.frameWriter.WriteFrame(f)
}

// handleConnectionTune processes Connection.Tune method
func (c *Connection) handleConnectionTune(f *frame.Frame) error {
	method, err := f.ParseMethod()
	if err != nil {
		return err
	}

	if method.ClassID != protocol.ClassConnection || method.MethodID != protocol.MethodConnectionTune {
		return fmt.Errorf("expected Connection.Tune, got %d.%d", method.ClassID, method.MethodID)
	}

	// Parse tune parameters
	args := frame.NewMethodArgs(method.Args)
	serverChannelMax, _ := args.ReadUint16()
	serverFrameMax, _ := args.ReadUint32()
	serverHeartbeat, _ := args.ReadUint16()

	// Negotiate parameters. Per spec.md §8, either side offering 0 means
	// "defer to the other side's value" -- it is not itself a value to
	// compare against, so 0 can never win a min() against a nonzero offer.
	c.channelMax = negotiateUint16(c.factory.ChannelMax, serverChannelMax)
	if c.channelMax == 0 {
		c.channelMax = 65535
	}

	c.frameMax = negotiateUint32(c.factory.FrameMax, serverFrameMax)
	if c.frameMax == 0 {
		c.frameMax = 131072
	}

	// Heartbeat is the one parameter where 0 is itself a meaningful result
	// (both sides agreeing to disable heartbeats), so no fallback default.
	requestedHeartbeat := uint16(c.factory.Heartbeat.Seconds())
	c.heartbeat = time.Duration(negotiateUint16(requestedHeartbeat, serverHeartbeat)) * time.Second

	// Update frame reader/writer with negotiated frame size
	c.frameReader.SetMaxFrameSize(c.frameMax)
	c.frameWriter.SetMaxFrameSize(c.frameMax)

	return nil
}

// negotiateUint16 applies spec.md §8's Tune negotiation rule to a
// uint16-valued parameter (channel_max, heartbeat): whichever side offers 0
// defers entirely to the other side's offer. When both offer 0 it returns
// 0; handleConnectionTune then substitutes the protocol default for
// channel_max and leaves a heartbeat of 0 as is.
func negotiateUint16(requested, offered uint16) uint16 {
	switch {
	case requested == 0:
		return offered
	case offered == 0:
		return requested
	case requested < offered:
		return requested
	default:
		return offered
	}
}

// negotiateUint32 is negotiateUint16 for frame_max.
func negotiateUint32(requested, offered uint32) uint32 {
	switch {
	case requested == 0:
		return offered
	case offered == 0:
		return requested
	case requested < offered:
		return requested
	default:
		return offered
	}
}

// sendConnectionTuneOk sends Connection.TuneOk method
func (c *Connection) sendConnectionTuneOk() error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(c.channelMax)
	builder.WriteUint32(c.frameMax)
	builder.WriteUint16(uint16(c.heartbeat.Seconds()))

	f := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionTuneOk, builder.Bytes())
	return c.frameWriter.WriteFrame(f)
}

// sendConnectionOpen sends Connection.Open method
func (c *Connection) sendConnectionOpen() error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteShortString(c.factory.VHost)
	builder.WriteShortString("") // capabilities (deprecated, empty)
	builder.WriteFlags(false)    // insist flag (deprecated, always false)

	f := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionOpen, builder.Bytes())
	return c.frameWriter.WriteFrame(f)
}

// handleConnectionOpenOk processes Connection.OpenOk method
func (c *Connection) handleConnectionOpenOk(f *frame.Frame) error {
	method, err := f.ParseMethod()
	if err != nil {
		return err
	}

	if method.ClassID != protocol.ClassConnection || method.MethodID != protocol.MethodConnectionOpenOk {
		return fmt.Errorf("expected Connection.OpenOk, got %d.%d", method.ClassID, method.MethodID)
	}

	// Connection is now open
	c.state.Store(int32(StateOpen))
	return nil
}

// start starts background goroutines
func (c *Connection) start() {
	c.closed = make(chan struct{})
	c.dispatchStop = make(chan struct{})
	c.dispatchDone = make(chan struct{})
	c.heartbeatStop = make(chan struct{})
	c.heartbeatDone = make(chan struct{})

	// Update last activity
	c.updateActivity()

	c.table = newSessionTable(c.channelMax)

	// Start frame dispatcher
	go c.frameDispatcher()

	// Start heartbeat if enabled
	if c.heartbeat > 0 {
		go c.heartbeatSender()
		go c.heartbeatMonitor()
	}

	// Notify listeners
	c.notifyListeners(func(l ConnectionListener) {
		l.OnConnectionCreated(c)
	})
}

// frameDispatcher reads frames and dispatches them to channels
func (c *Connection) frameDispatcher() {
	defer close(c.dispatchDone)

	for {
		select {
		case <-c.dispatchStop:
			return
		default:
		}

		// Read frame with timeout (none when heartbeats are disabled)
		if c.heartbeat > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
		} else {
			c.conn.SetReadDeadline(time.Time{})
		}
		f, err := c.frameReader.ReadFrame()
		if err != nil {
			if c.GetState() != StateClosed {
				c.closeWithError(NewError(protocol.ReplyConnectionForced, fmt.Sprintf("read frame: %v", err), false))
			}
			return
		}

		// Update activity timestamp
		c.updateActivity()

		// Handle frame
		if err := c.dispatchFrame(f); err != nil {
			if stop := c.handleDispatchError(f.ChannelID, err); stop {
				return
			}
		}
	}
}

// dispatchFrame dispatches a frame to the appropriate handler
func (c *Connection) dispatchFrame(f *frame.Frame) error {
	switch f.Type {
	case protocol.FrameMethod:
		return c.handleMethodFrame(f)
	case protocol.FrameHeartbeat:
		// Heartbeat received, activity already updated
		return nil
	case protocol.FrameHeader, protocol.FrameBody:
		// Dispatch to channel
		return c.dispatchToChannel(f)
	default:
		return fmt.Errorf("unknown frame type: %d", f.Type)
	}
}

// handleDispatchError classifies a dispatch failure per spec.md §4.1: a
// SoftProtocolException (channel-scoped, reply code < 500 excluding
// connection-forced) only quiesces the offending channel via
// quiesceChannel and lets the dispatcher keep running for the rest of the
// connection's channels; anything else -- a HardProtocolException, or an
// error this package can't classify -- is connection-fatal. Reports true
// when the caller's dispatch loop must stop.
func (c *Connection) handleDispatchError(channelID uint16, err error) bool {
	if c.GetState() == StateClosed {
		return true
	}

	var amqpErr *Error
	if e, ok := err.(*Error); ok {
		amqpErr = e
	} else {
		amqpErr = NewError(protocol.ReplyFrameError, fmt.Sprintf("dispatch frame: %v", err), false)
	}

	if channelID != 0 && IsSoftProtocolException(amqpErr) {
		c.quiesceChannel(channelID, amqpErr)
		return false
	}

	c.closeWithError(amqpErr)
	return true
}

// handleMethodFrame handles method frames on channel 0 (connection)
func (c *Connection) handleMethodFrame(f *frame.Frame) error {
	if f.ChannelID == 0 {
		// Connection-level method
		method, err := f.ParseMethod()
		if err != nil {
			return err
		}

		switch method.ClassID {
		case protocol.ClassConnection:
			return c.handleConnectionMethod(method)
		default:
			return fmt.Errorf("unexpected method on channel 0: %d.%d", method.ClassID, method.MethodID)
		}
	}

	// Dispatch to channel
	return c.dispatchToChannel(f)
}

// handleConnectionMethod handles connection class methods
func (c *Connection) handleConnectionMethod(method *frame.Method) error {
	switch method.MethodID {
	case protocol.MethodConnectionClose:
		return c.handleConnectionClose(method)
	case protocol.MethodConnectionBlocked:
		return c.handleConnectionBlocked(method)
	case protocol.MethodConnectionUnblocked:
		return c.handleConnectionUnblocked(method)
	default:
		return fmt.Errorf("unexpected connection method: %d", method.MethodID)
	}
}

// handleConnectionClose processes Connection.Close method
func (c *Connection) handleConnectionClose(method *frame.Method) error {
	args := frame.NewMethodArgs(method.Args)
	replyCode, _ := args.ReadUint16()
	replyText, _ := args.ReadShortString()

	// Send Connection.CloseOk
	builder := frame.NewMethodArgsBuilder()
	f := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionCloseOk, builder.Bytes())
	c.frameWriter.WriteFrame(f)

	// Close connection
	err := NewError(int(replyCode), replyText, true)
	c.closeWithError(err)

	return nil
}

// handleConnectionBlocked processes Connection.Blocked method
func (c *Connection) handleConnectionBlocked(method *frame.Method) error {
	args := frame.NewMethodArgs(method.Args)
	reason, _ := args.ReadShortString()

	c.blocked.Store(true)

	// Notify on channel
	select {
	case c.blockedChan <- BlockedNotification{Blocked: true, Reason: reason}:
	default:
	}

	// Notify listeners
	c.notifyListeners(func(l ConnectionListener) {
		l.OnConnectionBlocked(c, reason)
	})

	// Notify factory handler
	if c.factory.BlockedHandler != nil {
		c.factory.BlockedHandler.OnBlocked(c, reason)
	}

	return nil
}

// handleConnectionUnblocked processes Connection.Unblocked method
func (c *Connection) handleConnectionUnblocked(method *frame.Method) error {
	c.blocked.Store(false)

	// Notify on channel
	select {
	case c.blockedChan <- BlockedNotification{Blocked: false}:
	default:
	}

	// Notify listeners
	c.notifyListeners(func(l ConnectionListener) {
		l.OnConnectionUnblocked(c)
	})

	// Notify factory handler
	if c.factory.BlockedHandler != nil {
		c.factory.BlockedHandler.OnUnblocked(c)
	}

	return nil
}

// quiesceChannel implements spec.md §4.1's SoftProtocolException handling:
// the Session Table slot at channelID is swapped for a Quiescing Session
// (sessionTable.swap) so the real Channel's number isn't freed out from
// under it mid-handshake, the swapped-out Channel is told it no longer owns
// its slot, and it is torn down with cause without touching any other
// channel or the connection itself.
func (c *Connection) quiesceChannel(channelID uint16, cause *Error) {
	quiescing := newQuiescingChannel(c, channelID)
	old := c.table.swap(channelID, quiescing)
	if old == nil {
		quiescing.retire()
		return
	}
	old.swappedOut.Store(true)
	old.closeWithError(cause)
}

// dispatchToChannel dispatches a frame to a channel's session
func (c *Connection) dispatchToChannel(f *frame.Frame) error {
	ch, exists := c.table.lookup(f.ChannelID)
	if !exists {
		return fmt.Errorf("frame for unknown channel: %d", f.ChannelID)
	}

	// Send frame to channel's session (non-blocking)
	select {
	case ch.session.incomingFrames <- f:
		return nil
	default:
		return fmt.Errorf("channel %d frame buffer full", f.ChannelID)
	}
}

// heartbeatSender sends periodic heartbeat frames
func (c *Connection) heartbeatSender() {
	defer close(c.heartbeatDone)

	ticker := time.NewTicker(c.heartbeat / 4)
	defer ticker.Stop()

	for {
		select {
		case <-c.heartbeatStop:
			return
		case <-ticker.C:
			if err := c.frameWriter.WriteFrame(frame.NewHeartbeatFrame()); err != nil {
				c.closeWithError(NewError(protocol.ReplyConnectionForced, fmt.Sprintf("send heartbeat: %v", err), false))
				return
			}
		}
	}
}

// heartbeatMonitor monitors for missing heartbeats
func (c *Connection) heartbeatMonitor() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.heartbeatStop:
			return
		case <-ticker.C:
			lastActivity := time.Unix(c.lastActivity.Load(), 0)
			if time.Since(lastActivity) > c.heartbeat*2 {
				c.closeWithError(NewError(protocol.ReplyConnectionForced, "heartbeat timeout", false))
				return
			}
		}
	}
}

// updateActivity updates the last activity timestamp
func (c *Connection) updateActivity() {
	c.lastActivity.Store(time.Now().Unix())
}

// NewChannel creates a new channel on this connection
func (c *Connection) NewChannel() (*Channel, error) {
	return c.NewChannelWithContext(context.Background())
}

// NewChannelWithContext creates a new channel with context support
func (c *Connection) NewChannelWithContext(ctx context.Context) (*Channel, error) {
	if c.GetState() != StateOpen {
		return nil, ErrClosed
	}

	ch := &Channel{
		conn:      c,
		closeChan: make(chan *Error, 1),
		closed:    make(chan struct{}),
		consumers: make(map[string]*consumerState),
	}
	ch.state.Store(int32(StateConnecting))

	// Allocate a channel number and register it BEFORE opening so it can
	// receive response frames.
	channelID, err := c.table.allocate(ch)
	if err != nil {
		return nil, err
	}
	ch.id = channelID
	ch.session = newSession(channelID, c.frameWriter, ch.closed)
	ch.session.dispatch = ch.handleMethodFrame

	// Open channel
	if err := ch.open(ctx); err != nil {
		c.table.free(channelID)
		return nil, err
	}

	return ch, nil
}

// Close gracefully closes the connection
func (c *Connection) Close() error {
	return c.CloseWithCode(protocol.ReplySuccess, "connection closed")
}

// GetChannelCount returns the current number of open channels
func (c *Connection) GetChannelCount() int {
	return c.table.count()
}

// CloseWithCode closes the connection with a specific reply code and text
func (c *Connection) CloseWithCode(code int, text string) error {
	if c.GetState() == StateClosed {
		return nil
	}

	c.state.Store(int32(StateClosing))

	// Send Connection.Close
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(uint16(code))
	builder.WriteShortString(text)
	builder.WriteUint16(0) // class-id
	builder.WriteUint16(0) // method-id

	f := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionClose, builder.Bytes())
	c.frameWriter.WriteFrame(f)

	// Wait for Connection.CloseOk with timeout
	timeout := time.After(5 * time.Second)
	select {
	case <-c.closed:
	case <-timeout:
	}

	c.cleanup()
	return nil
}

// closeWithError closes the connection with an error
func (c *Connection) closeWithError(err *Error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))

		// Send error to close channel
		select {
		case c.closeChan <- err:
		default:
		}

		// Notify listeners
		c.notifyListeners(func(l ConnectionListener) {
			l.OnConnectionClosed(c, err)
		})

		// Call error handler
		if c.factory.ErrorHandler != nil {
			c.factory.ErrorHandler.HandleConnectionError(c, err)
		}

		close(c.closed)
		c.cleanup()
	})
}

// cleanup releases resources
func (c *Connection) cleanup() {
	// Stop background goroutines (with panic recovery in case already closed)
	func() {
		defer func() { recover() }()
		close(c.dispatchStop)
	}()

	if c.heartbeat > 0 {
		func() {
			defer func() { recover() }()
			close(c.heartbeatStop)
		}()

		// Wait for heartbeat goroutine with timeout
		select {
		case <-c.heartbeatDone:
		case <-time.After(2 * time.Second):
			// Timeout waiting for heartbeat to stop
		}
	}

	// Close network connection to unblock any pending reads
	// Must be done before waiting for dispatcher to finish
	if c.conn != nil {
		c.conn.Close()
	}

	// Wait for dispatcher with timeout
	select {
	case <-c.dispatchDone:
	case <-time.After(2 * time.Second):
		// Timeout waiting for dispatcher to stop
	}

	// Close all channels
	channels := c.table.drain()

	// Clean up channels without holding the table's lock to avoid deadlock
	for _, ch := range channels {
		ch.closeOnce.Do(func() {
			ch.state.Store(int32(ChannelStateClosed))

			select {
			case ch.closeChan <- ErrChannelClosed:
			default:
			}

			if c.factory.ErrorHandler != nil {
				c.factory.ErrorHandler.HandleChannelError(ch, ErrChannelClosed)
			}

			close(ch.closed)
			// Only clean up consumers, don't try to remove from connection
			// (already drained from c.table above)
			ch.cleanupConsumers()
		})
	}
}

// IsClosed returns whether the connection is closed
func (c *Connection) IsClosed() bool {
	return c.GetState() == StateClosed
}

// GetState returns the current connection state
func (c *Connection) GetState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsBlocked returns whether the connection is currently blocked
func (c *Connection) IsBlocked() bool {
	return c.blocked.Load()
}

// NotifyClose registers a listener for connection closure
func (c *Connection) NotifyClose(ch chan *Error) chan *Error {
	go func() {
		err := <-c.closeChan
		ch <- err
	}()
	return ch
}

// NotifyBlocked registers a listener for connection blocked/unblocked events
func (c *Connection) NotifyBlocked(ch chan BlockedNotification) chan BlockedNotification {
	go func() {
		for notification := range c.blockedChan {
			ch <- notification
		}
	}()
	return ch
}

// AddConnectionListener adds a connection lifecycle listener
func (c *Connection) AddConnectionListener(listener ConnectionListener) {
	c.listenerMux.Lock()
	defer c.listenerMux.Unlock()
	c.listeners = append(c.listeners, listener)
}

// RemoveConnectionListener removes a connection listener
func (c *Connection) RemoveConnectionListener(listener ConnectionListener) {
	c.listenerMux.Lock()
	defer c.listenerMux.Unlock()

	for i, l := range c.listeners {
		if l == listener {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// notifyListeners calls a function for each listener
func (c *Connection) notifyListeners(fn func(ConnectionListener)) {
	c.listenerMux.RLock()
	defer c.listenerMux.RUnlock()

	for _, listener := range c.listeners {
		fn(listener)
	}
}

// adoptListeners copies prev's connection listeners onto c. Used by the
// Recovery Orchestrator when it replaces the underlying Connection so a
// listener registered via AddConnectionListener before a recovery keeps
// receiving events on the new Connection instance afterward.
func (c *Connection) adoptListeners(prev *Connection) {
	prev.listenerMux.RLock()
	listeners := append([]ConnectionListener(nil), prev.listeners...)
	prev.listenerMux.RUnlock()

	c.listenerMux.Lock()
	c.listeners = append(c.listeners, listeners...)
	c.listenerMux.Unlock()
}

// GetChannelMax returns the negotiated maximum number of channels
func (c *Connection) GetChannelMax() uint16 {
	return c.channelMax
}

// GetFrameMax returns the negotiated maximum frame size
func (c *Connection) GetFrameMax() uint32 {
	return c.frameMax
}

// GetHeartbeat returns the negotiated heartbeat interval
func (c *Connection) GetHeartbeat() time.Duration {
	return c.heartbeat
}
