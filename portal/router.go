package portal

import (
	"context"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/trainhub/errors"
	"go.uber.org/zap"
	"sync"
	"time"
)

// brokerRequestTimeout limits broker-side subscribe and unsubscribe calls.
const brokerRequestTimeout = 10 * time.Second

// mqttInboundRouter abstracts paho.Router with only stuff that is needed for
// router.
type mqttInboundRouter interface {
	RegisterHandler(topic string, handler paho.MessageHandler)
	UnregisterHandler(topic string)
}

// subscription is a container for the lifetime context.Context and the channel
// to forward the received paho.Publish message to.
type subscription struct {
	lifetime context.Context
	forward  chan<- Inbound[any]
}

// registeredHandler is a container for subscriptions to serve.
type registeredHandler struct {
	// subscriptions contains all active subscriptions that are served by the
	// handler.
	subscriptions map[*subscription]struct{}
	// subscriptionsMutex locks subscriptions.
	subscriptionsMutex sync.RWMutex
}

// Handler returns a paho.MessageHandler that forwards to all subscriptions for
// the handler.
func (handler *registeredHandler) Handler() paho.MessageHandler {
	return func(publish *paho.Publish) {
		// Forward to all listeners.
		var allForwarded sync.WaitGroup
		handler.subscriptionsMutex.RLock()
		for sub := range handler.subscriptions {
			allForwarded.Add(1)
			go func(sub *subscription) {
				defer allForwarded.Done()
				select {
				case <-sub.lifetime.Done():
				case sub.forward <- Inbound[any]{Publish: publish}:
				}
			}(sub)
		}
		handler.subscriptionsMutex.RUnlock()
		allForwarded.Wait()
	}
}

// router is used for multiplexing MQTT subscriptions and forwarding received
// messages according to them. Broker-side subscriptions are performed lazily
// once a kiosk is available and replayed on every reconnect.
type router struct {
	logger *zap.Logger
	// mqtt is the actual router that performs the matching.
	mqtt mqttInboundRouter
	// kiosk performs broker-side subscriptions. Nil until the first connection
	// is up.
	kiosk mqttKiosk
	// registeredHandlers holds all handlers by subscribed topics.
	registeredHandlers map[Topic]*registeredHandler
	// registeredHandlersMutex locks registeredHandlers and kiosk.
	registeredHandlersMutex sync.Mutex
}

func newRouter(logger *zap.Logger, mqtt mqttInboundRouter) *router {
	return &router{
		logger:             logger,
		mqtt:               mqtt,
		registeredHandlers: make(map[Topic]*registeredHandler),
	}
}

// setKiosk sets the broker-side subscriber and replays all registered topics.
// Called on every connection-up as the broker drops subscriptions on
// disconnect.
func (router *router) setKiosk(kiosk mqttKiosk) {
	router.registeredHandlersMutex.Lock()
	router.kiosk = kiosk
	topics := make([]Topic, 0, len(router.registeredHandlers))
	for topic := range router.registeredHandlers {
		topics = append(topics, topic)
	}
	router.registeredHandlersMutex.Unlock()
	for _, topic := range topics {
		router.subscribeBroker(kiosk, topic)
	}
}

// subscribeBroker performs the broker-side subscription for the topic.
func (router *router) subscribeBroker(kiosk mqttKiosk, topic Topic) {
	ctx, cancel := context.WithTimeout(context.Background(), brokerRequestTimeout)
	defer cancel()
	_, err := kiosk.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: map[string]paho.SubscribeOptions{
			string(topic): {QoS: mqttQOS},
		},
	})
	if err != nil {
		errors.Log(router.logger, errors.Error{
			Code:    errors.ErrCommunication,
			Err:     err,
			Message: "subscribe topic on broker failed",
			Details: errors.Details{"topic": topic},
		})
	}
}

// unsubscribeBroker performs the broker-side unsubscription for the topic.
func (router *router) unsubscribeBroker(kiosk mqttKiosk, topic Topic) {
	ctx, cancel := context.WithTimeout(context.Background(), brokerRequestTimeout)
	defer cancel()
	_, err := kiosk.Unsubscribe(ctx, &paho.Unsubscribe{
		Topics: []string{string(topic)},
	})
	if err != nil {
		errors.Log(router.logger, errors.Error{
			Code:    errors.ErrCommunication,
			Err:     err,
			Message: "unsubscribe topic on broker failed",
			Details: errors.Details{"topic": topic},
		})
	}
}

// subscribe for the given Topic and forward messages to the given channel
// until the context.Context is done.
func (router *router) subscribe(lifetime context.Context, topic Topic, forward chan<- Inbound[any]) {
	router.registeredHandlersMutex.Lock()
	// Check if already existing.
	handlerRef, ok := router.registeredHandlers[topic]
	var kioskForSubscribe mqttKiosk
	if !ok {
		handlerRef = &registeredHandler{subscriptions: make(map[*subscription]struct{})}
		router.registeredHandlers[topic] = handlerRef
		// Subscribe MQTT topic.
		router.mqtt.RegisterHandler(string(topic), handlerRef.Handler())
		kioskForSubscribe = router.kiosk
		router.logger.Debug("subscribed to topic", zap.Any("topic", topic))
	}
	// Add subscription.
	sub := &subscription{
		lifetime: lifetime,
		forward:  forward,
	}
	handlerRef.subscriptionsMutex.Lock()
	handlerRef.subscriptions[sub] = struct{}{}
	handlerRef.subscriptionsMutex.Unlock()
	router.registeredHandlersMutex.Unlock()
	if kioskForSubscribe != nil {
		router.subscribeBroker(kioskForSubscribe, topic)
	}
	// Unsubscribe when lifetime done.
	go func() {
		<-lifetime.Done()
		router.unsubscribe(topic, sub)
	}()
}

// unsubscribe the given subscription for the Topic. Only router should call
// this!
func (router *router) unsubscribe(topic Topic, sub *subscription) {
	router.registeredHandlersMutex.Lock()
	defer router.registeredHandlersMutex.Unlock()
	// Get handler.
	handler, ok := router.registeredHandlers[topic]
	if !ok {
		errors.Log(router.logger, errors.NewInternalError("unsubscribe called for unknown registered handler",
			errors.Details{"topic": topic}))
		return
	}
	// Remove subscription.
	handler.subscriptionsMutex.Lock()
	defer handler.subscriptionsMutex.Unlock()
	if _, ok := handler.subscriptions[sub]; !ok {
		errors.Log(router.logger, errors.NewInternalError("unsubscribe with unknown subscription for handler",
			errors.Details{"topic": topic}))
		return
	}
	delete(handler.subscriptions, sub)
	// Check if subscriptions left as then we do not need to unregister the
	// handler.
	if len(handler.subscriptions) > 0 {
		return
	}
	// Unregister handler.
	delete(router.registeredHandlers, topic)
	router.mqtt.UnregisterHandler(string(topic))
	if router.kiosk != nil {
		router.unsubscribeBroker(router.kiosk, topic)
	}
}
