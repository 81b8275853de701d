package logger

import (
	"github.com/phuslu/log"

	"gameboost/internal/config"
)

// createEventlogWriter creates an eventlog writer based on configuration
func createEventlogWriter(config *config.EventlogConfig) (log.Writer, error) {
	return maybeAsync(&log.EventlogWriter{
		Source: config.Source,
		ID:     uintptr(config.ID),
		Host:   config.Host,
	}, config.Async), nil
}
