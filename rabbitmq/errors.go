package rabbitmq

import (
	"errors"
	"fmt"

	"github.com/relaymq/amqp-go/internal/protocol"
)

// Error represents an AMQP error
type Error struct {
	Code    int
	Reason  string
	Server  bool   // true if error originated from server
	Recover bool   // true if connection/channel can be recovered
}

// Error implements the error interface
func (e *Error) Error() string {
	origin := "client"
	if e.Server {
		origin = "server"
	}
	return fmt.Sprintf("AMQP error %d (%s): %s", e.Code, origin, e.Reason)
}

// Predefined errors matching AMQP reply codes
var (
	ErrClosed = &Error{
		Code:    protocol.ReplyConnectionForced,
		Reason:  "connection closed",
		Server:  false,
		Recover: false,
	}

	ErrChannelClosed = &Error{
		Code:    protocol.ReplyChannelError,
		Reason:  "channel closed",
		Server:  false,
		Recover: false,
	}

	ErrNotFound = &Error{
		Code:    protocol.ReplyNotFound,
		Reason:  "resource not found",
		Server:  true,
		Recover: false,
	}

	ErrAccessRefused = &Error{
		Code:    protocol.ReplyAccessRefused,
		Reason:  "access refused",
		Server:  true,
		Recover: false,
	}

	ErrPreconditionFailed = &Error{
		Code:    protocol.ReplyPreconditionFailed,
		Reason:  "precondition failed",
		Server:  true,
		Recover: false,
	}

	ErrResourceLocked = &Error{
		Code:    protocol.ReplyResourceLocked,
		Reason:  "resource locked",
		Server:  true,
		Recover: false,
	}

	ErrFrameError = &Error{
		Code:    protocol.ReplyFrameError,
		Reason:  "frame error",
		Server:  false,
		Recover: false,
	}

	ErrSyntaxError = &Error{
		Code:    protocol.ReplySyntaxError,
		Reason:  "syntax error",
		Server:  true,
		Recover: false,
	}

	ErrCommandInvalid = &Error{
		Code:    protocol.ReplyCommandInvalid,
		Reason:  "command invalid",
		Server:  true,
		Recover: false,
	}

	ErrChannelError = &Error{
		Code:    protocol.ReplyChannelError,
		Reason:  "channel error",
		Server:  true,
		Recover: false,
	}

	ErrUnexpectedFrame = &Error{
		Code:    protocol.ReplyUnexpectedFrame,
		Reason:  "unexpected frame",
		Server:  true,
		Recover: false,
	}

	ErrResourceError = &Error{
		Code:    protocol.ReplyResourceError,
		Reason:  "resource error",
		Server:  true,
		Recover: false,
	}

	ErrNotAllowed = &Error{
		Code:    protocol.ReplyNotAllowed,
		Reason:  "not allowed",
		Server:  true,
		Recover: false,
	}

	ErrNotImplemented = &Error{
		Code:    protocol.ReplyNotImplemented,
		Reason:  "not implemented",
		Server:  true,
		Recover: false,
	}

	ErrInternalError = &Error{
		Code:    protocol.ReplyInternalError,
		Reason:  "internal error",
		Server:  true,
		Recover: false,
	}

	ErrContentTooLarge = &Error{
		Code:    protocol.ReplyContentTooLarge,
		Reason:  "content too large",
		Server:  true,
		Recover: false,
	}

	ErrNoRoute = &Error{
		Code:    protocol.ReplyNoRoute,
		Reason:  "no route",
		Server:  true,
		Recover: false,
	}

	ErrNoConsumers = &Error{
		Code:    protocol.ReplyNoConsumers,
		Reason:  "no consumers",
		Server:  true,
		Recover: false,
	}

	// ErrAuthenticationFailure means the broker rejected the SASL PLAIN
	// response sent in Connection.StartOk.
	ErrAuthenticationFailure = &Error{
		Code:    protocol.ReplyAccessRefused,
		Reason:  "authentication failure",
		Server:  true,
		Recover: false,
	}

	// ErrProtocolVersionMismatch means the broker's Connection.Start
	// advertised a version other than 0-9-1.
	ErrProtocolVersionMismatch = &Error{
		Code:    protocol.ReplyConnectionForced,
		Reason:  "protocol version mismatch",
		Server:  true,
		Recover: false,
	}

	// ErrHardProtocolException is a connection-fatal protocol violation:
	// the entire connection and all its channels are closed.
	ErrHardProtocolException = &Error{
		Code:    protocol.ReplyFrameError,
		Reason:  "hard protocol exception",
		Server:  false,
		Recover: false,
	}

	// ErrSoftProtocolException is a channel-fatal protocol violation: only
	// the offending channel closes, the connection survives.
	ErrSoftProtocolException = &Error{
		Code:    protocol.ReplyChannelError,
		Reason:  "soft protocol exception",
		Server:  true,
		Recover: false,
	}

	// ErrChannelExhausted means the Session Table has no free channel
	// numbers left under the negotiated channel_max.
	ErrChannelExhausted = &Error{
		Code:    protocol.ReplyResourceError,
		Reason:  "channel numbers exhausted",
		Server:  false,
		Recover: false,
	}

	// ErrObjectDisposed means a call was made on a Connection or Channel
	// already past Closed.
	ErrObjectDisposed = &Error{
		Code:    protocol.ReplyChannelError,
		Reason:  "object disposed",
		Server:  false,
		Recover: false,
	}
)

// NewError creates a new Error from reply code and text
func NewError(code int, reason string, server bool) *Error {
	return &Error{
		Code:    code,
		Reason:  reason,
		Server:  server,
		Recover: code != protocol.ReplyConnectionForced && code < 500,
	}
}

// classifyProtocolException reports whether code is a spec.md §4.1 soft
// (channel-scoped) or hard (connection-fatal) protocol exception, using the
// same boundary NewError's Recover field already draws: anything below 500
// other than connection-forced (320) only poisons the channel that raised
// it, everything else tears down the whole connection.
func classifyProtocolException(code int) (soft bool) {
	return code != protocol.ReplyConnectionForced && code < 500
}

// IsProtocolVersionMismatch reports whether err is ErrProtocolVersionMismatch.
func IsProtocolVersionMismatch(err error) bool {
	return errors.Is(err, ErrProtocolVersionMismatch)
}

// IsAuthenticationFailure reports whether err is ErrAuthenticationFailure.
func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrAuthenticationFailure)
}

// IsObjectDisposed reports whether err is ErrObjectDisposed.
func IsObjectDisposed(err error) bool {
	return errors.Is(err, ErrObjectDisposed)
}

// IsSoftProtocolException reports whether err is an *Error carrying a
// channel-scoped (soft) AMQP reply code: the offending channel closes, the
// connection survives. A non-*Error is never a soft exception.
func IsSoftProtocolException(err error) bool {
	var amqpErr *Error
	if !errors.As(err, &amqpErr) {
		return false
	}
	return classifyProtocolException(amqpErr.Code)
}

// IsHardProtocolException reports whether err is an *Error carrying a
// connection-fatal (hard) AMQP reply code, or is not an *Error at all --
// an error this package can't classify is treated as connection-fatal.
func IsHardProtocolException(err error) bool {
	var amqpErr *Error
	if !errors.As(err, &amqpErr) {
		return true
	}
	return !classifyProtocolException(amqpErr.Code)
}

// ErrorHandler handles connection and channel errors
type ErrorHandler interface {
	HandleConnectionError(conn *Connection, err error)
	HandleChannelError(ch *Channel, err error)
	HandleConsumerError(ch *Channel, consumerTag string, err error)
	HandleReturnListenerError(ch *Channel, err error)
	HandleConfirmListenerError(ch *Channel, err error)
}

// DefaultErrorHandler provides default error handling with logging
type DefaultErrorHandler struct {
	Logger Logger
}

// HandleConnectionError logs connection errors
func (deh *DefaultErrorHandler) HandleConnectionError(conn *Connection, err error) {
	if deh.Logger != nil {
		deh.Logger.Printf("Connection error: %v", err)
	}
}

// HandleChannelError logs channel errors
func (deh *DefaultErrorHandler) HandleChannelError(ch *Channel, err error) {
	if deh.Logger != nil {
		deh.Logger.Printf("Channel %d error: %v", ch.id, err)
	}
}

// HandleConsumerError logs consumer errors
func (deh *DefaultErrorHandler) HandleConsumerError(ch *Channel, consumerTag string, err error) {
	if deh.Logger != nil {
		deh.Logger.Printf("Consumer %s error: %v", consumerTag, err)
	}
}

// HandleReturnListenerError logs return listener errors
func (deh *DefaultErrorHandler) HandleReturnListenerError(ch *Channel, err error) {
	if deh.Logger != nil {
		deh.Logger.Printf("Return listener error: %v", err)
	}
}

// HandleConfirmListenerError logs confirm listener errors
func (deh *DefaultErrorHandler) HandleConfirmListenerError(ch *Channel, err error) {
	if deh.Logger != nil {
		deh.Logger.Printf("Confirm listener error: %v", err)
	}
}

// Logger interface for custom logging
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}
