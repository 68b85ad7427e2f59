package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phsym/console-slog"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
)

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger returns the process logger writing to w. ENV=development selects
// the console handler, anything else JSON.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	lv := &slog.LevelVar{}
	lv.Set(level)

	var handler slog.Handler
	if os.Getenv("ENV") == "development" {
		handler = console.NewHandler(w, &console.HandlerOptions{
			AddSource: level == slog.LevelDebug,
			Level:     lv,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lv,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	}
	return slog.New(handler)
}

// ProtocolLogger builds the protocol event logger. Events go to logger at
// debug level and, when path is set, to a CBOR log file. The returned close
// function flushes the file.
func ProtocolLogger(logger *slog.Logger, path string) (log.Logger, func() error, error) {
	sinks := []log.Logger{log.NewSlogAdapter(logger)}
	closeFn := func() error { return nil }

	if path != "" {
		file, err := log.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("protocol log: %w", err)
		}
		sinks = append(sinks, file)
		closeFn = file.Close
	}
	return log.NewMultiLogger(sinks...), closeFn, nil
}
