// Package stream serves decoded train messages to websocket clients.
package stream

import (
	"context"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/logging"
	"go.uber.org/zap"
	"time"
)

const (
	// writeTimeout is the timeout for writing a message to the peer.
	writeTimeout = 10 * time.Second
	// pingInterval is the interval in which pings are sent to the peer. Must be
	// less than pongTimeout.
	pingInterval = (pongTimeout * 9) / 10
	// pongTimeout is the timeout for waiting for the next pong message from the
	// peer. Must be greater than pingInterval.
	pongTimeout = 60 * time.Second
	// maxMessageSize is the maximum message size allowed from peer. The stream
	// is outbound-only, so inbound messages stay small.
	maxMessageSize = 512
)

// Client holds the websocket connection and is being used by Hub.
type Client struct {
	// ID identifies the client in logs.
	ID uuid.UUID
	// Send receives messages to be written to the peer.
	Send chan []byte
	// hub is the actual websocket hub which is used for registering and
	// unregistering.
	hub *Hub
	// connection is the actual websocket connection.
	connection *websocket.Conn
}

// logger returns a logger with the Client id as field.
func (c *Client) logger() *zap.Logger {
	return logging.StreamLogger.With(zap.String("client", c.ID.String()))
}

// readPump keeps the connection alive and discards inbound messages. The
// stream is outbound-only.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		err := c.connection.Close()
		if err != nil {
			c.logger().Debug("close connection", zap.Error(err))
		}
	}()
	c.connection.SetReadLimit(maxMessageSize)
	_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
	// Handle received pong.
	c.connection.SetPongHandler(func(string) error {
		_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		// Read next message. Content is dropped.
		_, _, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().Debug("unexpected close", zap.Error(err))
			}
			break
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// writePump forwards outgoing messages from the hub to the websocket
// connection. We do not pass a context.Context here because the hub will close
// the Send-channel which will lead to termination, anyways.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		// Stop ping ticker in order to avoid ticker leak.
		pingTicker.Stop()
		// Close connection.
		err := c.connection.Close()
		if err != nil {
			c.logger().Debug("close connection", zap.Error(err))
		}
	}()
	for {
		select {
		case message, ok := <-c.Send:
			// Set write timeout.
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			// Check if connection close is requested from hub.
			if !ok {
				err := c.connection.WriteMessage(websocket.CloseMessage, []byte{})
				if err != nil {
					c.logger().Debug("write close message", zap.Error(err))
				}
				return
			}
			// Write message.
			nextWriter, err := c.connection.NextWriter(websocket.TextMessage)
			if err != nil {
				// We expect the read pump to fail as well.
				c.logger().Warn("create writer for text message", zap.Error(err))
				return
			}
			_, err = nextWriter.Write(message)
			if err != nil {
				errors.Log(c.logger(), errors.Error{
					Code:    errors.ErrCommunication,
					Err:     err,
					Message: "write text message",
				})
			}
			// Close writer.
			if err := nextWriter.Close(); err != nil {
				c.logger().Warn("close next writer", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			// Send ping.
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger().Warn("write ping", zap.Error(err))
				return
			}
		}
	}
}
