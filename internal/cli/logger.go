package cli

import (
	"log/slog"
	"os"
)

// newLogger builds the slog.Logger passed into the store, engine and
// workspace layers. orc serve runs unattended, so logs go to stderr as
// text; --verbose drops the level to Debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
