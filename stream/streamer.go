package stream

import (
	"context"
	"encoding/json"
	"github.com/lefinal/trainhub/dispatch"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/trainmsg"
	"go.uber.org/zap"
	"time"
)

// streamItem is the JSON shape broadcast to stream clients.
type streamItem struct {
	Train      string        `json:"train"`
	Kind       trainmsg.Kind `json:"kind"`
	ReceivedAt time.Time     `json:"received_at"`
	Message    trainmsg.Msg  `json:"message"`
}

// Streamer subscribes all events of the train and broadcasts them to the
// hub's clients as JSON.
type Streamer struct {
	logger     *zap.Logger
	hub        *Hub
	dispatcher *dispatch.Dispatcher
	trainName  string
}

// NewStreamer creates a Streamer. Run it with Streamer.Run.
func NewStreamer(logger *zap.Logger, hub *Hub, dispatcher *dispatch.Dispatcher, trainName string) *Streamer {
	return &Streamer{
		logger:     logger,
		hub:        hub,
		dispatcher: dispatcher,
		trainName:  trainName,
	}
}

// Run forwards events to the hub until the given context.Context is done.
func (streamer *Streamer) Run(ctx context.Context) error {
	newsletter := dispatch.SubscribeEvents(streamer.dispatcher.Subscriptions())
	defer newsletter.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-newsletter.Receive:
			if event == nil {
				// Receive-channel closed.
				return nil
			}
			raw, err := json.Marshal(streamItem{
				Train:      streamer.trainName,
				Kind:       event.Kind(),
				ReceivedAt: event.ReceivedAt(),
				Message:    event,
			})
			if err != nil {
				errors.Log(streamer.logger, errors.NewInternalErrorFromErr(err, "marshal stream item",
					errors.Details{"kind": event.Kind()}))
				continue
			}
			streamer.hub.Broadcast(ctx, raw)
		}
	}
}
