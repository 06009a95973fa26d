package stream

import (
	"context"
	"github.com/lefinal/trainhub/logging"
	"go.uber.org/zap"
)

// Hub holds all active clients and manages centralized broadcasting.
type Hub struct {
	// clients holds all online clients.
	clients map[*Client]struct{}
	// register receives when a Client wants to register itself.
	register chan *Client
	// unregister receives when a Client wants to unregister itself.
	unregister chan *Client
	// broadcast receives messages to forward to all online clients.
	broadcast chan []byte
}

// NewHub creates a new Hub. Start it with Hub.Run.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
	}
}

// Broadcast forwards the message to all online clients. Clients with a full
// send-buffer are disconnected as they cannot keep up with the stream.
func (h *Hub) Broadcast(ctx context.Context, message []byte) {
	select {
	case <-ctx.Done():
	case h.broadcast <- message:
	}
}

// Run starts the Hub. It blocks so you need to start a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Disconnect all remaining clients.
			for c := range h.clients {
				delete(h.clients, c)
				close(c.Send)
			}
			return
		case c := <-h.register:
			// Register client.
			h.clients[c] = struct{}{}
			logging.StreamLogger.Info("stream client connected", zap.String("client_id", c.ID.String()))
		case c := <-h.unregister:
			// Unregister client.
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				logging.StreamLogger.Info("stream client disconnected", zap.String("client_id", c.ID.String()))
				// Close the send-channel which leads to stopping the write-pump.
				close(c.Send)
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.Send <- message:
				default:
					// The client cannot keep up. Drop it.
					logging.StreamLogger.Warn("disconnecting slow stream client",
						zap.String("client_id", c.ID.String()))
					delete(h.clients, c)
					close(c.Send)
				}
			}
		}
	}
}
