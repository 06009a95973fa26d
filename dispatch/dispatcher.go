package dispatch

import (
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/trainmsg"
	"go.uber.org/zap"
)

// Dispatcher decodes raw frames and routes the resulting messages: response
// messages to outstanding awaiters first, then every message to the kind
// subscriptions. Malformed frames are logged and routed like any other
// message, so diagnostics consumers can subscribe to them.
type Dispatcher struct {
	logger        *zap.Logger
	subscriptions *SubscriptionManager
	awaiter       *Awaiter
}

// NewDispatcher creates a Dispatcher that is ready to use.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:        logger,
		subscriptions: NewSubscriptionManager(),
		awaiter:       NewAwaiter(),
	}
}

// Subscriptions returns the manager for subscribing message kinds.
func (d *Dispatcher) Subscriptions() *SubscriptionManager {
	return d.subscriptions
}

// Awaiter returns the awaiter for request/response correlation.
func (d *Dispatcher) Awaiter() *Awaiter {
	return d.awaiter
}

// HandleFrame decodes the raw frame from the given channel and routes the
// resulting message. The decoded message is returned so callers can persist
// or forward it themselves.
func (d *Dispatcher) HandleFrame(data []byte, ch trainmsg.Channel) trainmsg.Msg {
	msg := trainmsg.Decode(data, ch)
	d.HandleMsg(msg, ch)
	return msg
}

// HandleMsg routes an already decoded message.
func (d *Dispatcher) HandleMsg(msg trainmsg.Msg, ch trainmsg.Channel) {
	switch concrete := msg.(type) {
	case trainmsg.Malformed:
		errors.Log(d.logger, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    concrete.Reason,
			Err:     concrete.Err,
			Message: "malformed frame received",
			Details: errors.Details{
				"channel": ch,
				"frame":   concrete.Packet().HexString(),
			},
		})
	case trainmsg.Unknown:
		errors.Log(d.logger, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindUnknownCommand,
			Message: "frame with unknown command received",
			Details: errors.Details{
				"channel": ch,
				"command": concrete.Command,
				"frame":   concrete.Packet().HexString(),
			},
		})
	case trainmsg.EventUnknown:
		errors.Log(d.logger, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindUnknownEvent,
			Message: "event frame with unknown event id received",
			Details: errors.Details{
				"channel": ch,
				"command": concrete.Command,
				"eventId": concrete.EventID,
				"frame":   concrete.Packet().HexString(),
			},
		})
	}
	if ch == trainmsg.ChannelResponse {
		if d.awaiter.HandleMsg(msg) {
			return
		}
	}
	forwards := d.subscriptions.HandleMsg(msg)
	d.logger.Debug("message dispatched",
		zap.String("kind", string(msg.Kind())),
		zap.String("channel", string(ch)),
		zap.Int("forwards", forwards))
}

// Shutdown cancels all ongoing subscriptions.
func (d *Dispatcher) Shutdown() {
	d.subscriptions.CancelAllSubscriptions()
}
