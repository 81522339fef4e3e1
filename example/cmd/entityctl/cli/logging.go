package cli

import (
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/config"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/zapadapter"
	"github.com/AntonStoeckl/dynamic-entitystore-go/example/library"
)

const formatJSON = "json"

// newLogger builds the logger of backend writing to w. The returned func flushes buffered records.
func newLogger(backend string, settings config.Logging, w io.Writer) (library.Logger, func() error, error) {
	switch backend {
	case LogBackendZap:
		level, err := zapcore.ParseLevel(settings.Level)
		if err != nil {
			return nil, nil, err
		}

		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		encoder := zapcore.NewConsoleEncoder(encoderConfig)
		if settings.Format == formatJSON {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}

		logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level))

		return zapadapter.New(logger), logger.Sync, nil

	case LogBackendSlog:
		options := &slog.HandlerOptions{Level: settings.SlogLevel()}

		var handler slog.Handler = slog.NewTextHandler(w, options)
		if settings.Format == formatJSON {
			handler = slog.NewJSONHandler(w, options)
		}

		return slog.New(handler), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", backend)
	}
}
