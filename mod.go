// Package keyrec implements a deferred-result convenience layer over an
// embedded key/value engine. A store is a named, versioned database file
// holding record collections ("tables") with optional secondary indexes.
// Every operation wraps a single engine transaction and settles a
// single-resolution promise.
//
// The entry points live in the store package, the deferred result in the
// promise package and the engine boundary in the kv package.
package keyrec

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.InfoLevel)
