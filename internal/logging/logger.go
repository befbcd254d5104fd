// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/nappa/dcr-transcribe/internal/config"
)

// New builds a charmbracelet/log logger at the configured verbosity,
// writing to stderr so stdout stays reserved for the transcript stream.
func New(level config.LogLevel) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	logger.SetLevel(parseLevel(level))
	return logger
}

func parseLevel(level config.LogLevel) log.Level {
	switch level {
	case config.LogDebug:
		return log.DebugLevel
	case config.LogWarn:
		return log.WarnLevel
	case config.LogError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ForChannel returns a child logger tagging every line with its channel id.
func ForChannel(logger *log.Logger, channelID int) *log.Logger {
	return logger.With("channel", channelID)
}
