//go:build dev || debug

package logger

import "github.com/rs/zerolog"

// defaultLevel is the default level for development builds.
var defaultLevel = zerolog.DebugLevel
