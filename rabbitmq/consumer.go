package rabbitmq

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/relaymq/amqp-go/internal/frame"
	"github.com/relaymq/amqp-go/internal/protocol"
)

// ConsumerCallback is a callback-based consumer interface (matching Java's Consumer)
type ConsumerCallback interface {
	HandleConsumeOk(consumerTag string)
	HandleCancelOk(consumerTag string)
	HandleCancel(consumerTag string) error
	HandleDelivery(consumerTag string, delivery Delivery) error
	HandleShutdown(consumerTag string, cause *Error)
	HandleRecoverOk(consumerTag string)
}

// DefaultConsumer provides default no-op implementations of ConsumerCallback
type DefaultConsumer struct{}

// HandleConsumeOk is called when the consumer is successfully registered
func (dc *DefaultConsumer) HandleConsumeOk(consumerTag string) {}

// HandleCancelOk is called when the consumer is successfully cancelled
func (dc *DefaultConsumer) HandleCancelOk(consumerTag string) {}

// HandleCancel is called when the server cancels the consumer
func (dc *DefaultConsumer) HandleCancel(consumerTag string) error {
	return nil
}

// HandleDelivery is called when a message is delivered
func (dc *DefaultConsumer) HandleDelivery(consumerTag string, delivery Delivery) error {
	return nil
}

// HandleShutdown is called when the channel shuts down
func (dc *DefaultConsumer) HandleShutdown(consumerTag string, cause *Error) {}

// HandleRecoverOk is called after successful recovery
func (dc *DefaultConsumer) HandleRecoverOk(consumerTag string) {}

// DeliveryHandlerFunc is a function-based delivery handler (like Java's DeliverCallback)
type DeliveryHandlerFunc func(consumerTag string, delivery Delivery) error

// CancelHandlerFunc handles consumer cancellation
type CancelHandlerFunc func(consumerTag string) error

// ConsumeWithCallback starts a consumer with a callback interface. An empty
// consumerTag asks the broker to assign one (AMQP 0-9-1 Basic.Consume's
// server-named-tag convention, the consumer-tag analogue of declaring a
// queue with an empty name) -- registerConsumer resolves the actual tag
// once the broker answers.
func (ch *Channel) ConsumeWithCallback(queue, consumerTag string, opts ConsumeOptions, callback ConsumerCallback) error {
	if ch.GetState() != ChannelStateOpen {
		return ErrChannelClosed
	}

	serverNamed := consumerTag == ""
	if serverNamed && opts.NoWait {
		return fmt.Errorf("consume: a server-assigned consumer tag requires NoWait=false")
	}

	_, err := ch.registerConsumer(queue, consumerTag, serverNamed, opts, callback)
	return err
}

// registerConsumer sends Basic.Consume and, once a tag is known, installs
// the consumerState and records it for recovery replay. wireTag is sent on
// the wire as-is (possibly empty); a local bookkeeping tag is generated
// upfront so the consumer can be registered before the broker's response
// arrives, then renamed in place once the final tag is known. Returns the
// tag actually in effect once registration succeeds.
func (ch *Channel) registerConsumer(queue, wireTag string, serverNamed bool, opts ConsumeOptions, callback ConsumerCallback) (string, error) {
	bookingTag := wireTag
	if serverNamed {
		bookingTag = generateConsumerTag(queue, ch.id)
	}

	consumer := &consumerState{
		tag:        bookingTag,
		queue:      queue,
		callback:   callback,
		cancelChan: make(chan struct{}),
		autoAck:    opts.AutoAck,
		exclusive:  opts.Exclusive,
		noLocal:    opts.NoLocal,
		args:       opts.Args,
	}

	ch.consumerMux.Lock()
	ch.consumers[bookingTag] = consumer
	ch.consumerMux.Unlock()

	// Send Basic.Consume
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(queue)
	builder.WriteShortString(wireTag)
	// Pack flags: no-local, no-ack, exclusive, no-wait
	builder.WriteFlags(opts.NoLocal, opts.AutoAck, opts.Exclusive, opts.NoWait)
	builder.WriteTable(opts.Args)

	if opts.NoWait {
		methodFrame := frame.NewMethodFrame(ch.id, protocol.ClassBasic, protocol.MethodBasicConsume, builder.Bytes())
		if err := ch.sendFrame(methodFrame); err != nil {
			ch.consumerMux.Lock()
			delete(ch.consumers, bookingTag)
			ch.consumerMux.Unlock()
			return "", err
		}
		ch.recordConsumer(bookingTag, queue, opts, callback, serverNamed)
		callback.HandleConsumeOk(bookingTag)
		return bookingTag, nil
	}

	method, err := ch.rpcCall(protocol.ClassBasic, protocol.MethodBasicConsume, builder.Bytes())
	if err != nil {
		ch.consumerMux.Lock()
		delete(ch.consumers, bookingTag)
		ch.consumerMux.Unlock()
		return "", err
	}

	if method.MethodID != protocol.MethodBasicConsumeOk {
		ch.consumerMux.Lock()
		delete(ch.consumers, bookingTag)
		ch.consumerMux.Unlock()
		return "", ErrCommandInvalid
	}

	// Parse response and notify callback
	args := frame.NewMethodArgs(method.Args)
	returnedTag, _ := args.ReadShortString()
	finalTag := returnedTag
	if finalTag == "" {
		finalTag = bookingTag
	}

	if finalTag != bookingTag {
		ch.consumerMux.Lock()
		if consumer, exists := ch.consumers[bookingTag]; exists {
			delete(ch.consumers, bookingTag)
			consumer.tag = finalTag
			ch.consumers[finalTag] = consumer
		}
		ch.consumerMux.Unlock()
		if !ch.conn.recorder.Replaying() {
			ch.conn.recorder.RenameConsumer(bookingTag, finalTag)
		}
	}

	ch.recordConsumer(finalTag, queue, opts, callback, serverNamed)
	callback.HandleConsumeOk(finalTag)

	return finalTag, nil
}

// recordConsumer records consumerTag for recovery replay, unless this call
// is itself part of a Replay (spec.md §4.4: replay-issued consumes don't
// re-record). serverNamed marks a consumer whose tag was broker-assigned,
// so Replay knows to re-request an empty tag rather than the exact
// previous one (spec.md §4.5's ConsumerTagChangeAfterRecovery).
func (ch *Channel) recordConsumer(consumerTag, queue string, opts ConsumeOptions, callback ConsumerCallback, serverNamed bool) {
	if ch.conn.recorder.Replaying() {
		return
	}
	ch.conn.recorder.RecordConsumer(RecordedConsumer{
		Tag: consumerTag, Queue: queue, AutoAck: opts.AutoAck,
		Exclusive: opts.Exclusive, Arguments: opts.Args, Callback: callback,
		IsServerNamed: serverNamed,
	})
}

// ConsumeWithHandler starts a consumer with a simple function handler
func (ch *Channel) ConsumeWithHandler(queue, consumerTag string, opts ConsumeOptions, handler DeliveryHandlerFunc) error {
	// Wrap handler in a consumer callback
	consumer := &handlerConsumer{
		DefaultConsumer: DefaultConsumer{},
		handler:         handler,
	}

	return ch.ConsumeWithCallback(queue, consumerTag, opts, consumer)
}

// handlerConsumer wraps a DeliveryHandlerFunc
type handlerConsumer struct {
	DefaultConsumer
	handler DeliveryHandlerFunc
}

// HandleDelivery delegates to the handler function
func (hc *handlerConsumer) HandleDelivery(consumerTag string, delivery Delivery) error {
	return hc.handler(consumerTag, delivery)
}

// generateConsumerTag generates a unique consumer tag
func generateConsumerTag(queue string, channelID uint16) string {
	return fmt.Sprintf("ctag-%s-%d-%s", queue, channelID, uuid.NewString())
}
