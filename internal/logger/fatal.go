package logger

import (
	"log/slog"
	"os"
)

// FatalWithLogger logs through logger, runs the cleanups so rotating log
// files are flushed, then exits.
func FatalWithLogger(logger *slog.Logger, msg string, err error, cleanups ...func()) {
	logger.Error(msg, "error", err)
	for _, fn := range cleanups {
		if fn != nil {
			fn()
		}
	}
	os.Exit(1)
}
