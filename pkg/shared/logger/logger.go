package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
)

func NewLogger(config *config.Config, name string) hclog.Logger {
	var logLevel hclog.Level

	if config != nil && config.Logger.Level != "" {
		logLevel = getLogLevel(strings.ToUpper(config.Logger.Level))
	} else {
		// env variables has the second priority
		logLevelEnv := os.Getenv("SQRUN_LOG_LEVEL")
		logLevel = getLogLevel(strings.ToUpper(logLevelEnv))
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:        name,
		DisableTime: true,
		Output:      os.Stdout,
		Level:       logLevel,
	})

	return logger
}

// NewRotatingWriter returns a size-rotated file writer for long-lived
// subprocess logs, or io.Discard when no path is configured.
func NewRotatingWriter(path string) io.WriteCloser {
	if path == "" {
		return nopCloser{io.Discard}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func getLogLevel(levelStr string) hclog.Level {
	switch levelStr {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	default:
		return hclog.Info
	}
}
