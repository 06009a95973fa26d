// Package app wires all components into a runnable trainhub instance.
package app

import (
	"context"
	"github.com/lefinal/trainhub/dispatch"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/logging"
	"github.com/lefinal/trainhub/portal"
	"github.com/lefinal/trainhub/recording"
	"github.com/lefinal/trainhub/stores"
	"github.com/lefinal/trainhub/stream"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"os"
)

// App is a complete trainhub instance.
type App struct {
	// config is the main config used for the App.
	config Config
	// mall provides persistence.
	mall *stores.Mall
	// dispatcher decodes frames and routes messages.
	dispatcher *dispatch.Dispatcher
	// portalBase holds the MQTT broker connection.
	portalBase portal.Base
	// frameGateway consumes raw frames from the broker and publishes decoded
	// messages.
	frameGateway *portal.FrameGateway
	// streamHub is the hub for websocket connections.
	streamHub *stream.Hub
	// streamServer serves the websocket stream.
	streamServer *stream.Server
	// streamer broadcasts events to the stream hub.
	streamer *stream.Streamer
	// recorder persists decoded messages.
	recorder *recording.Recorder
}

func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and boots.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	// Setup logger.
	logger := setupLogging(app.config.Log)
	logging.ApplyToGlobalLoggers(logger)
	defer func(loggerToSync *zap.Logger) {
		_ = loggerToSync.Sync()
	}(logger)
	// Boot.
	err = app.boot(ctx)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logging.AppLogger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context) error {
	logging.AppLogger.Warn("booting up")
	// Connect database.
	logging.AppLogger.Debug("connecting to database")
	db, err := connectDB(app.config.DBConn, defaultMaxDBConnections)
	if err != nil {
		return errors.Wrap(err, "connect database", nil)
	}
	app.mall = stores.NewMall(db)
	logging.AppLogger.Debug("database ready")
	logging.AppLogger.Debug("setting up...")
	// Create dispatcher.
	app.dispatcher = dispatch.NewDispatcher(logging.DispatchLogger)
	// Create portal base for the MQTT broker connection.
	app.portalBase, err = portal.NewBase(logging.PortalLogger, portal.Config{MQTTAddr: app.config.MQTTAddr})
	if err != nil {
		return errors.Wrap(err, "create portal base", nil)
	}
	// Create frame gateway.
	app.frameGateway = portal.NewFrameGateway(logging.PortalLogger,
		app.portalBase.NewPortal("frame-gateway"), app.dispatcher, app.config.TrainName)
	// Create websocket stream.
	app.streamHub = stream.NewHub()
	app.streamServer, err = stream.NewServer(stream.Config{
		ServeAddr:    app.config.StreamAddr,
		WriteTimeout: stream.DefaultWriteTimeout,
		ReadTimeout:  stream.DefaultReadTimeout,
	}, app.streamHub, app.mall)
	if err != nil {
		return errors.Wrap(err, "create stream server", nil)
	}
	app.streamer = stream.NewStreamer(logging.StreamLogger, app.streamHub, app.dispatcher, app.config.TrainName)
	// Create recorder.
	app.recorder = recording.NewRecorder(logging.RecordingLogger, app.mall,
		app.dispatcher.Subscriptions(), app.config.TrainName)
	logging.AppLogger.Debug("setup completed. booting...")
	// Boot everything.
	appCtx, shutdown := context.WithCancel(ctx)
	defer shutdown()
	eg, egCtx := errgroup.WithContext(appCtx)
	eg.Go(func() error {
		err := app.portalBase.Open(egCtx)
		if err != nil {
			return errors.Wrap(err, "open portal base", nil)
		}
		return nil
	})
	eg.Go(func() error {
		err := app.frameGateway.Run(egCtx)
		if err != nil {
			return errors.Wrap(err, "run frame gateway", nil)
		}
		return nil
	})
	eg.Go(func() error {
		app.streamHub.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		err := app.streamServer.Run(egCtx)
		if err != nil {
			return errors.Wrap(err, "run stream server", nil)
		}
		return nil
	})
	eg.Go(func() error {
		err := app.streamer.Run(egCtx)
		if err != nil {
			return errors.Wrap(err, "run streamer", nil)
		}
		return nil
	})
	eg.Go(func() error {
		err := app.recorder.Run(egCtx)
		if err != nil {
			return errors.Wrap(err, "run recorder", nil)
		}
		return nil
	})
	logging.AppLogger.Warn("completed issuing boot commands")
	// Wait for exit.
	err = eg.Wait()
	logging.AppLogger.Warn("shutting down")
	app.dispatcher.Shutdown()
	if err != nil {
		return errors.Wrap(err, "run components", nil)
	}
	return nil
}

func setupLogging(config LogConfig) *zap.Logger {
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= config.StdoutLogLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encConfig),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger.
	if config.HighPriorityOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.HighPriorityOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if config.DebugOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.DebugOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	// Combine.
	return zap.New(zapcore.NewTee(cores...))
}
