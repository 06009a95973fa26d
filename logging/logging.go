package logging

import "go.uber.org/zap"

// Loggers.
var (
	// AppLogger is the main app.App logger.
	AppLogger *zap.Logger
	// DBLogger is used for stuff regarding the database connection.
	DBLogger *zap.Logger
	// DecodeLogger is used for frame decoding.
	DecodeLogger *zap.Logger
	// DispatchLogger is used for routing decoded messages to waiters and
	// subscribers.
	DispatchLogger *zap.Logger
	// PortalLogger is the logger for all MQTT stuff.
	PortalLogger *zap.Logger
	// RecordingLogger is used for persisting decoded messages.
	RecordingLogger *zap.Logger
	// StreamLogger is used for all stuff regarding websocket connections.
	StreamLogger *zap.Logger
)

func init() {
	// Assure loggers are usable before ApplyToGlobalLoggers is called, mostly
	// for tests.
	ApplyToGlobalLoggers(zap.NewNop())
}

// ApplyToGlobalLoggers sets all package loggers based on the given root
// logger.
func ApplyToGlobalLoggers(logger *zap.Logger) {
	AppLogger = logger.Named("app")
	DBLogger = logger.Named("db")
	DecodeLogger = logger.Named("decode")
	DispatchLogger = logger.Named("dispatch")
	PortalLogger = logger.Named("portal")
	RecordingLogger = logger.Named("recording")
	StreamLogger = logger.Named("stream")
}
