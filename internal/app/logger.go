package app

import (
	"strings"

	"github.com/hearthly/hearth/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
func ConfigureLogging(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.Init(level)
}

// ConfigureClientLogging initialises human-readable console logging for the offline client.
func ConfigureClientLogging(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "warn"
	}
	return logger.InitWithOptions(logger.Options{Level: level, Encoding: "console"})
}
