package observability

import (
	"github.com/danmuck/treenet/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime logging profile and tags the global
// logger with the app name and the per-run instance id.
func InitLogger(app, runID string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := log.Logger.With().Str("app", app).Str("run", runID).Logger()
	log.Logger = logger
	return logger
}

// Component derives a child logger for one subsystem of a peer.
func Component(name, self string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Str("self", self).Logger()
}
