package app

import (
	"encoding/json"
	nativeerrors "errors"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/stream"
	"go.uber.org/zap/zapcore"
	"os"
)

// LogConfig is the logging configuration used in Config.
type LogConfig struct {
	// StdoutLogLevel is the minimum level for log entries written to stdout.
	StdoutLogLevel zapcore.Level `json:"stdout_log_level"`
	// HighPriorityOutput is an optional log file for entries with at least warn
	// level.
	HighPriorityOutput nulls.String `json:"high_priority_output"`
	// DebugOutput is an optional log file for all entries.
	DebugOutput nulls.String `json:"debug_output"`
	// MaxSize is the maximum size in megabytes for log files before rotation.
	MaxSize int `json:"max_size"`
	// KeepDays is the number of days rotated log files are kept.
	KeepDays int `json:"keep_days"`
}

// Config is the configuration needed in order to boot an App.
type Config struct {
	// DBConn is the connection string for the PostgreSQL database.
	DBConn string `json:"db_conn"`
	// MQTTAddr is the address of the MQTT broker the train frames arrive on.
	MQTTAddr string `json:"mqtt_addr"`
	// StreamAddr is the address the websocket stream listens on. Defaults to
	// stream.DefaultServeAddr.
	StreamAddr string `json:"stream_addr"`
	// TrainName is the name of the train whose frame topics are consumed.
	TrainName string `json:"train_name"`
	// Log is the logging configuration.
	Log LogConfig `json:"log"`
}

// LoadConfigFromFile loads the Config from the JSON file at the given path.
func LoadConfigFromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewInternalErrorFromErr(err, "read config file", errors.Details{"path": path})
	}
	config := Config{
		StreamAddr: stream.DefaultServeAddr,
	}
	err = json.Unmarshal(raw, &config)
	if err != nil {
		return Config{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDecodeJSON,
			Err:     err,
			Message: "parse config file",
			Details: errors.Details{"path": path},
		}
	}
	return config, nil
}

// ValidateConfig assures that all required fields in the given Config are set.
func ValidateConfig(config Config) error {
	if config.DBConn == "" {
		return nativeerrors.New("missing db connection string")
	}
	if config.MQTTAddr == "" {
		return nativeerrors.New("missing mqtt address")
	}
	if config.TrainName == "" {
		return nativeerrors.New("missing train name")
	}
	return nil
}
