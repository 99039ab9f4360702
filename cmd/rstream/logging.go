package main

import (
	"io"
	"time"

	"github.com/itchio/headway/state"
	"github.com/rs/zerolog"
)

func newLogger(output io.Writer, verbose bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: output, NoColor: true}).
		Level(level).
		With().
		Timestamp().
		Str("service", "rstream").
		Logger()
}

// newConsumer forwards headway messages to logger. Progress is only
// logged when it crosses a tenth.
func newConsumer(logger zerolog.Logger) *state.Consumer {
	lastTenth := -1

	return &state.Consumer{
		OnMessage: func(level string, msg string) {
			switch level {
			case "debug":
				logger.Debug().Msg(msg)
			case "warning":
				logger.Warn().Msg(msg)
			case "error":
				logger.Error().Msg(msg)
			default:
				logger.Info().Msg(msg)
			}
		},
		OnProgress: func(alpha float64) {
			tenth := int(alpha * 10)
			if tenth == lastTenth {
				return
			}
			lastTenth = tenth
			logger.Debug().Float64("progress", alpha).Msg("progress")
		},
	}
}
