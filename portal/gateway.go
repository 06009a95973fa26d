package portal

import (
	"context"
	"fmt"
	"github.com/lefinal/trainhub/dispatch"
	"github.com/lefinal/trainhub/trainmsg"
	"go.uber.org/zap"
	"time"
)

// TopicTrainFrames is the topic raw frames of the train arrive on, one topic
// per delivery channel. The payload is the raw frame bytes.
func TopicTrainFrames(trainName string, ch trainmsg.Channel) Topic {
	return Topic(fmt.Sprintf("%s/%s/frames/%s", baseTopic, trainName, ch))
}

// TopicTrainMessages is the topic decoded messages of the train are published
// on, one topic per kind.
func TopicTrainMessages(trainName string, kind trainmsg.Kind) Topic {
	return Topic(fmt.Sprintf("%s/%s/messages/%s", baseTopic, trainName, kind))
}

// MessageContainer is the JSON container for decoded messages published via
// the FrameGateway.
type MessageContainer struct {
	Train      string        `json:"train"`
	Kind       trainmsg.Kind `json:"kind"`
	ReceivedAt time.Time     `json:"received_at"`
	// Frame is the raw frame as colon-delimited hex.
	Frame string `json:"frame"`
	// Message is the decoded message itself.
	Message trainmsg.Msg `json:"message"`
}

// FrameGateway consumes raw frames for one train from the broker, decodes
// them via the dispatcher and publishes the decoded messages back to the
// broker.
type FrameGateway struct {
	logger     *zap.Logger
	portal     Portal
	dispatcher *dispatch.Dispatcher
	trainName  string
}

// NewFrameGateway creates a FrameGateway for the given train. Run it with
// FrameGateway.Run.
func NewFrameGateway(logger *zap.Logger, portal Portal, dispatcher *dispatch.Dispatcher, trainName string) *FrameGateway {
	return &FrameGateway{
		logger:     logger,
		portal:     portal,
		dispatcher: dispatcher,
		trainName:  trainName,
	}
}

// Run subscribes the frame topics of the train and serves them until the
// given context.Context is done.
func (gateway *FrameGateway) Run(ctx context.Context) error {
	responseFrames := gateway.portal.Subscribe(ctx, TopicTrainFrames(gateway.trainName, trainmsg.ChannelResponse))
	defer responseFrames.Unsubscribe()
	eventFrames := gateway.portal.Subscribe(ctx, TopicTrainFrames(gateway.trainName, trainmsg.ChannelEvent))
	defer eventFrames.Unsubscribe()
	gateway.logger.Info("serving train frames", zap.String("train", gateway.trainName))
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-responseFrames.Receive:
			gateway.handleFrame(ctx, in.Publish.Payload, trainmsg.ChannelResponse)
		case in := <-eventFrames.Receive:
			gateway.handleFrame(ctx, in.Publish.Payload, trainmsg.ChannelEvent)
		}
	}
}

// handleFrame decodes and routes the raw frame, then publishes the decoded
// message to the kind's message topic.
func (gateway *FrameGateway) handleFrame(ctx context.Context, data []byte, ch trainmsg.Channel) {
	msg := gateway.dispatcher.HandleFrame(data, ch)
	gateway.portal.Publish(ctx, TopicTrainMessages(gateway.trainName, msg.Kind()), MessageContainer{
		Train:      gateway.trainName,
		Kind:       msg.Kind(),
		ReceivedAt: msg.ReceivedAt(),
		Frame:      msg.Packet().HexString(),
		Message:    msg,
	})
}
