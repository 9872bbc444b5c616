package sanitizex

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Severity values for Cloud Logging compatibility.
const (
	severityDebug = "DEBUG"
	severityError = "ERROR"
)

// newLogger builds the diagnostics logger for cfg.
// An explicit cfg.Logger wins; without an Output diagnostics are discarded.
func newLogger(cfg *Config) *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	if cfg.Output == nil {
		return zap.NewNop()
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.CallerKey = "source"
	encoderConfig.FunctionKey = "function"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(cfg.Output),
		cfg.Level,
	)
	return zap.New(core, zap.AddCaller()).
		With(zap.String("application_name", cfg.ServiceName))
}
