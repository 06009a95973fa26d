// Package dispatch routes decoded train messages to subscribers and matches
// response messages to outstanding requests.
package dispatch

import (
	"context"
	"fmt"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/logging"
	"github.com/lefinal/trainhub/trainmsg"
	"sync"
)

// SubscriptionToken is used for subscriptions that were initiated via
// SubscriptionManager.SubscribeKind. Use it for unsubscribing.
type SubscriptionToken int

// Newsletter is a container for a SubscriptionManager with a created
// subscription. This allows easy unsubscribing without carrying the manager
// around separately.
type Newsletter struct {
	// Manager is the SubscriptionManager the subscription was created on.
	Manager *SubscriptionManager
	// Subscription is the actual subscription.
	Subscription *subscription
}

// GeneralNewsletter wraps Newsletter with the receive-channel for messages of
// any concrete type. The Receive-channel is never closed; use the context in
// Newsletter.Subscription to check whether the subscription is still active.
type GeneralNewsletter struct {
	Newsletter
	Receive <-chan trainmsg.Msg
}

// subscription is a container for subscriptions that were created via
// SubscriptionManager.SubscribeKind.
type subscription struct {
	// Ctx is the context of the subscription which is done when the subscription
	// is no longer active.
	Ctx context.Context
	// setInactive cancels the Ctx. This allows dropping messages to forward.
	setInactive context.CancelFunc
	// kind is the trainmsg.Kind the subscription is for.
	kind trainmsg.Kind
	// token is the SubscriptionToken for unsubscribing.
	token SubscriptionToken
	// out is the channel for received messages that matched the kind. If the
	// subscription is already contained in a Newsletter, do not receive manually
	// from here!
	out chan trainmsg.Msg
}

// SubscriptionManager forwards decoded messages to subscriptions for the
// respective trainmsg.Kind. Add subscriptions via SubscribeKind and don't
// forget to unsubscribe. If all subscriptions should be cancelled, call
// CancelAllSubscriptions. Messages are handled by calling HandleMsg.
type SubscriptionManager struct {
	// subscriptionsByKind is used for providing quick access to subscribers when
	// a message is received.
	subscriptionsByKind map[trainmsg.Kind][]*subscription
	// subscriptionsByToken allows quick access when unsubscribing by providing
	// the wanted trainmsg.Kind in the subscription for removing from
	// subscriptionsByKind.
	subscriptionsByToken map[SubscriptionToken]*subscription
	// subscriptionCounter is used for generating a simple SubscriptionToken.
	subscriptionCounter int
	// subscriptionsMutex is a lock for subscriptionsByKind, subscriptionsByToken
	// and subscriptionCounter.
	subscriptionsMutex sync.RWMutex
}

// NewSubscriptionManager creates a new SubscriptionManager that is ready to
// use.
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		subscriptionsByKind:  make(map[trainmsg.Kind][]*subscription),
		subscriptionsByToken: make(map[SubscriptionToken]*subscription),
	}
}

// SubscribeKind subscribes messages with the given trainmsg.Kind.
func (m *SubscriptionManager) SubscribeKind(kind trainmsg.Kind) GeneralNewsletter {
	m.subscriptionsMutex.Lock()
	defer m.subscriptionsMutex.Unlock()
	m.subscriptionCounter++
	out := make(chan trainmsg.Msg)
	ctx, setInactive := context.WithCancel(context.Background())
	sub := &subscription{
		Ctx:         ctx,
		setInactive: setInactive,
		kind:        kind,
		token:       SubscriptionToken(m.subscriptionCounter),
		out:         out,
	}
	m.subscriptionsByToken[sub.token] = sub
	if _, ok := m.subscriptionsByKind[kind]; !ok {
		m.subscriptionsByKind[kind] = make([]*subscription, 0, 1)
	}
	m.subscriptionsByKind[kind] = append(m.subscriptionsByKind[kind], sub)
	return GeneralNewsletter{
		Newsletter: Newsletter{Manager: m, Subscription: sub},
		Receive:    out,
	}
}

// HandleMsg forwards the passed message to all subscribers for its kind and
// returns the number of subscribers the message was forwarded to.
func (m *SubscriptionManager) HandleMsg(msg trainmsg.Msg) int {
	m.subscriptionsMutex.RLock()
	forwards := 0
	if subscriptions, ok := m.subscriptionsByKind[msg.Kind()]; ok {
		// Forward to each subscriber.
		for _, s := range subscriptions {
			select {
			case <-s.Ctx.Done():
				// Subscription done. We simply drop the message.
			case s.out <- msg:
				forwards++
			}
		}
	}
	m.subscriptionsMutex.RUnlock()
	return forwards
}

// Unsubscribe allows unsubscribing an ongoing subscription.
func (m *SubscriptionManager) Unsubscribe(sub *subscription) error {
	// Set subscription to inactive and then allowing a potential receiving
	// abort. We will remove it from the subscriptions list afterwards.
	m.subscriptionsMutex.RLock()
	sub.setInactive()
	m.subscriptionsMutex.RUnlock()
	// Now we wait until message handling has finished in order to remove it
	// from the list.
	m.subscriptionsMutex.Lock()
	defer m.subscriptionsMutex.Unlock()
	_, subFoundByToken := m.subscriptionsByToken[sub.token]
	if !subFoundByToken {
		return errors.Error{
			Code:    errors.ErrInternal,
			Message: fmt.Sprintf("unknown message subscription token %v", sub.token),
			Details: errors.Details{"token": sub.token},
		}
	}
	// Find position of token in subscriptions by kind.
	subsForKind, subscriptionsExistForKind := m.subscriptionsByKind[sub.kind]
	if !subscriptionsExistForKind {
		return errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindShouldNotHappen,
			Message: "no subscriptions for token by kind although it should exist",
			Details: errors.Details{"token": sub.token, "kind": sub.kind},
		}
	}
	pos := -1
	for i, subForKind := range subsForKind {
		if subForKind.token == sub.token {
			pos = i
			break
		}
	}
	if pos == -1 {
		return errors.Error{
			Code: errors.ErrInternal,
			Kind: errors.KindShouldNotHappen,
			Message: fmt.Sprintf("subscription with token %v not found in subscriptions by kind %v although it should exist",
				sub.token, sub.kind),
			Details: errors.Details{"token": sub.token, "kind": sub.kind},
		}
	}
	// Remove from subs for kind.
	subsForKind[pos] = subsForKind[len(subsForKind)-1]
	m.subscriptionsByKind[sub.kind] = subsForKind[:len(subsForKind)-1]
	// Remove from subs by token.
	delete(m.subscriptionsByToken, sub.token)
	return nil
}

// CancelAllSubscriptions cancels all ongoing subscriptions.
func (m *SubscriptionManager) CancelAllSubscriptions() {
	m.subscriptionsMutex.Lock()
	var wg sync.WaitGroup
	for i := range m.subscriptionsByToken {
		wg.Add(1)
		go func(sub *subscription) {
			defer wg.Done()
			err := m.Unsubscribe(sub)
			if err != nil {
				errors.Log(logging.DispatchLogger, errors.Wrap(err, "unsubscribe for cancel all", nil))
			}
		}(m.subscriptionsByToken[i])
	}
	m.subscriptionsByToken = make(map[SubscriptionToken]*subscription)
	m.subscriptionsByKind = make(map[trainmsg.Kind][]*subscription)
	m.subscriptionsMutex.Unlock()
	wg.Wait()
}

// Unsubscribe uses the wrapped SubscriptionManager in the given Newsletter in
// order to unsubscribe the contained subscription.
func Unsubscribe(newsletter Newsletter) error {
	err := newsletter.Manager.Unsubscribe(newsletter.Subscription)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("unsubscribe kind %s", newsletter.Subscription.kind), nil)
	}
	return nil
}

// UnsubscribeOrLogError unsubscribes the given Newsletter. If unsubscribing
// fails, the error is logged to logging.DispatchLogger.
func UnsubscribeOrLogError(newsletter Newsletter) {
	err := Unsubscribe(newsletter)
	if err != nil {
		errors.Log(logging.DispatchLogger, err)
	}
}

// TypedNewsletter wraps Newsletter with a self-closing receive-channel for the
// concrete message type.
type TypedNewsletter[msgT trainmsg.Msg] struct {
	Newsletter
	Receive <-chan msgT
}

// SubscribeTyped subscribes messages with the given trainmsg.Kind and narrows
// them to the concrete message type. Messages of a different concrete type are
// dropped with a logged error, which only happens if kind and type parameter
// disagree.
func SubscribeTyped[msgT trainmsg.Msg](m *SubscriptionManager, kind trainmsg.Kind) TypedNewsletter[msgT] {
	newsletter := m.SubscribeKind(kind)
	cc := make(chan msgT)
	go func() {
		defer close(cc)
		for {
			select {
			case <-newsletter.Subscription.Ctx.Done():
				return
			case msg := <-newsletter.Receive:
				typed, ok := msg.(msgT)
				if !ok {
					errors.Log(logging.DispatchLogger, errors.Error{
						Code:    errors.ErrInternal,
						Kind:    errors.KindShouldNotHappen,
						Message: fmt.Sprintf("message of kind %s has unexpected concrete type %T", kind, msg),
						Details: errors.Details{"kind": kind},
					})
					continue
				}
				select {
				case <-newsletter.Subscription.Ctx.Done():
					return
				case cc <- typed:
				}
			}
		}
	}()
	return TypedNewsletter[msgT]{
		Newsletter: newsletter.Newsletter,
		Receive:    cc,
	}
}

// EventNewsletter merges all event kinds into one receive-channel. When the
// newsletter is unsubscribed, the Receive-channel will be closed.
type EventNewsletter struct {
	unsubscribeFn func()
	Receive       <-chan trainmsg.Event
}

// Unsubscribe cancels all underlying subscriptions.
func (n *EventNewsletter) Unsubscribe() {
	n.unsubscribeFn()
}

// SubscribeEvents subscribes all event kinds, including event-unknown, and
// merges them into one newsletter.
func SubscribeEvents(m *SubscriptionManager) *EventNewsletter {
	eventKinds := []trainmsg.Kind{
		trainmsg.KindMovementDirectionChanged,
		trainmsg.KindLowBattery,
		trainmsg.KindLowBatteryCutOff,
		trainmsg.KindChargingStateChanged,
		trainmsg.KindButtonPressDetected,
		trainmsg.KindSnapCommandDetected,
		trainmsg.KindSnapCommandExecuted,
		trainmsg.KindFrontColorChanged,
		trainmsg.KindBackColorChanged,
		trainmsg.KindSplitDecision,
		trainmsg.KindEventUnknown,
	}
	newsletters := make([]TypedNewsletter[trainmsg.Event], 0, len(eventKinds))
	for _, kind := range eventKinds {
		newsletters = append(newsletters, SubscribeTyped[trainmsg.Event](m, kind))
	}
	merged := make(chan trainmsg.Event)
	mergeLifetime, stopMerge := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, newsletter := range newsletters {
		wg.Add(1)
		go func(newsletter TypedNewsletter[trainmsg.Event]) {
			defer wg.Done()
			for event := range newsletter.Receive {
				select {
				case <-mergeLifetime.Done():
					return
				case merged <- event:
				}
			}
		}(newsletter)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()
	return &EventNewsletter{
		unsubscribeFn: func() {
			stopMerge()
			for _, newsletter := range newsletters {
				UnsubscribeOrLogError(newsletter.Newsletter)
			}
		},
		Receive: merged,
	}
}
