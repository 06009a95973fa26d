package stream

import (
	"context"
	nativeerrors "errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/logging"
	"go.uber.org/zap"
	"net/http"
	"time"
)

const (
	// DefaultServeAddr is the default address to serve on.
	DefaultServeAddr = ":8080"
	// DefaultWriteTimeout is the default timeout for writing.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultReadTimeout is the default timeout for reading.
	DefaultReadTimeout = 15 * time.Second
)

// Config is the configuration that is used in order to create and run a
// Server.
type Config struct {
	// ServeAddr is the address for the server to listen to.
	ServeAddr string
	// WriteTimeout is the duration to wait until write fails with a timeout.
	WriteTimeout time.Duration
	// ReadTimeout is the duration to wait until read fails with a timeout.
	ReadTimeout time.Duration
}

// Server exposes the live message stream over websocket at /v1/stream and a
// read API for the persisted telemetry.
type Server struct {
	config     Config
	hub        *Hub
	store      Store
	httpServer *http.Server
}

// NewServer creates a new Server for the given Hub and Store. It expects the
// passed Config to be filled correctly. If you need default values, these are
// exported as DefaultServeAddr, DefaultWriteTimeout and DefaultReadTimeout.
// Run it with Server.Run.
func NewServer(config Config, hub *Hub, store Store) (*Server, error) {
	if config.ServeAddr == "" {
		return nil, nativeerrors.New("no addr provided in config")
	}
	server := &Server{
		config: config,
		hub:    hub,
		store:  store,
	}
	server.httpServer = &http.Server{
		Addr:         config.ServeAddr,
		WriteTimeout: config.WriteTimeout,
		ReadTimeout:  config.ReadTimeout,
	}
	return server, nil
}

// Run starts the server and blocks until the given context.Context is done.
func (server *Server) Run(ctx context.Context) error {
	router := http.NewServeMux()
	router.Handle("/v1/stream", handleWS(server.hub, ctx))
	router.Handle("/v1/trains", handleTrains(server.store))
	router.Handle("/v1/history/movements", handleMovementHistory(server.store))
	router.Handle("/v1/history/colors", handleColorEventHistory(server.store))
	server.httpServer.Handler = router
	go func() {
		logging.StreamLogger.Info("stream server running", zap.String("addr", server.config.ServeAddr))
		err := server.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errors.Log(logging.StreamLogger, errors.Error{
				Code:    errors.ErrCommunication,
				Err:     err,
				Message: "listen and serve",
			})
		}
	}()
	// Wait for stop command.
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := server.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return errors.Wrap(err, "shutdown stream server", nil)
	}
	return nil
}

// handleWS handles websocket requests. The passed context is used in order to
// stop all remaining read-pumps.
func handleWS(hub *Hub, ctx context.Context) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.StreamLogger.Debug("upgrade websocket connection", zap.Error(err))
			return
		}
		client := &Client{
			ID:         uuid.New(),
			Send:       make(chan []byte, 256),
			hub:        hub,
			connection: conn,
		}
		// Use the client's hub so that the reference from the handler can be
		// dropped.
		client.hub.register <- client
		// Power the pumps.
		go client.writePump()
		go client.readPump(ctx)
	}
}
