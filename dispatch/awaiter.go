package dispatch

import (
	"context"
	"fmt"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/trainmsg"
	"sync"
)

// responseWaiter is one outstanding request waiting for a response of a
// certain kind.
type responseWaiter struct {
	kind trainmsg.Kind
	// deliver receives the matched response. Closed when the waiter gives up.
	deliver chan trainmsg.Msg
	// abandoned is set when the waiting context was cancelled before delivery.
	abandoned context.Context
}

// Awaiter matches response messages to outstanding requests. Requests for the
// same kind are satisfied in the order they were registered. An Awaiter only
// sees messages its owner hands to HandleMsg, so it composes with a
// SubscriptionManager that receives the same messages.
type Awaiter struct {
	waitersByKind map[trainmsg.Kind][]*responseWaiter
	waitersMutex  sync.Mutex
}

// NewAwaiter creates an Awaiter that is ready to use.
func NewAwaiter() *Awaiter {
	return &Awaiter{
		waitersByKind: make(map[trainmsg.Kind][]*responseWaiter),
	}
}

// AwaitResponse blocks until a message with the given kind is handed to
// HandleMsg or the given context is done. Register before sending the request,
// otherwise the response can slip through.
func (a *Awaiter) AwaitResponse(ctx context.Context, kind trainmsg.Kind) (trainmsg.Msg, error) {
	waiter := &responseWaiter{
		kind:      kind,
		deliver:   make(chan trainmsg.Msg, 1),
		abandoned: ctx,
	}
	a.waitersMutex.Lock()
	a.waitersByKind[kind] = append(a.waitersByKind[kind], waiter)
	a.waitersMutex.Unlock()
	select {
	case <-ctx.Done():
		a.removeWaiter(waiter)
		// Delivery could have won the race right before removal.
		select {
		case msg := <-waiter.deliver:
			return msg, nil
		default:
		}
		return nil, errors.NewContextAbortedError(fmt.Sprintf("await response of kind %s", kind))
	case msg := <-waiter.deliver:
		return msg, nil
	}
}

// HandleMsg hands the message to the oldest waiter for its kind. It reports
// whether a waiter consumed the message.
func (a *Awaiter) HandleMsg(msg trainmsg.Msg) bool {
	a.waitersMutex.Lock()
	defer a.waitersMutex.Unlock()
	waiters := a.waitersByKind[msg.Kind()]
	for i, waiter := range waiters {
		select {
		case <-waiter.abandoned.Done():
			// The waiter gave up but was not removed yet. Skip it.
			continue
		default:
		}
		waiter.deliver <- msg
		a.waitersByKind[msg.Kind()] = append(waiters[:i], waiters[i+1:]...)
		return true
	}
	return false
}

// removeWaiter drops the waiter from the registry if still present.
func (a *Awaiter) removeWaiter(waiter *responseWaiter) {
	a.waitersMutex.Lock()
	defer a.waitersMutex.Unlock()
	waiters := a.waitersByKind[waiter.kind]
	for i, w := range waiters {
		if w == waiter {
			a.waitersByKind[waiter.kind] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

// AwaitResponseAs awaits a response of the given kind and narrows it to the
// concrete message type. A mismatch between kind and type parameter reports an
// errors.KindWrongResponse error.
func AwaitResponseAs[msgT trainmsg.Msg](ctx context.Context, a *Awaiter, kind trainmsg.Kind) (msgT, error) {
	var typed msgT
	msg, err := a.AwaitResponse(ctx, kind)
	if err != nil {
		return typed, errors.Wrap(err, "await response", nil)
	}
	typed, ok := msg.(msgT)
	if !ok {
		return typed, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindWrongResponse,
			Message: fmt.Sprintf("response of kind %s has unexpected concrete type %T", kind, msg),
			Details: errors.Details{"kind": kind},
		}
	}
	return typed, nil
}
