//go:build !dev && !debug

package logger

import "github.com/rs/zerolog"

// defaultLevel is the default level for production builds.
var defaultLevel = zerolog.InfoLevel
