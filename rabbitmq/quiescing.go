package rabbitmq

import (
	"github.com/relaymq/amqp-go/internal/frame"
	"github.com/relaymq/amqp-go/internal/protocol"
)

// newQuiescingChannel builds the placeholder spec.md §4.1 calls a Quiescing
// Session: a Channel occupying ch's slot in the Session Table that answers
// only channel.close/close-ok and otherwise drops whatever arrives, while
// the real Channel it replaced unwinds in the background. Installed by
// Connection.quiesceChannel.
func newQuiescingChannel(conn *Connection, id uint16) *Channel {
	q := &Channel{
		conn:      conn,
		id:        id,
		closeChan: make(chan *Error, 1),
		closed:    make(chan struct{}),
		consumers: make(map[string]*consumerState),
	}
	q.state.Store(int32(ChannelStateClosing))
	q.session = newSession(id, conn.frameWriter, q.closed)
	q.session.dispatch = q.handleQuiescingFrame

	go q.session.run()

	return q
}

// handleQuiescingFrame is the Quiescing Session's dispatch callback. Per
// spec.md §4.1 it replies to channel.close (whichever side initiated the
// close it's standing in for) with channel.close-ok and retires the slot;
// anything else is silently dropped.
func (q *Channel) handleQuiescingFrame(method *frame.Method) error {
	if method.ClassID != protocol.ClassChannel {
		return nil
	}

	switch method.MethodID {
	case protocol.MethodChannelClose:
		builder := frame.NewMethodArgsBuilder()
		okFrame := frame.NewMethodFrame(q.id, protocol.ClassChannel, protocol.MethodChannelCloseOk, builder.Bytes())
		q.sendFrame(okFrame)
		q.retire()
	case protocol.MethodChannelCloseOk:
		q.retire()
	}

	return nil
}

// retire releases the quiescing channel's number back to the Session Table
// once both sides have agreed the channel is closed.
func (q *Channel) retire() {
	q.closeOnce.Do(func() {
		close(q.closed)
		q.conn.table.free(q.id)
	})
}
