package tree

import (
	"fmt"
	"log/slog"
	"os"
)

// setupLogging installs the process-wide slog handler. Logs go to stderr
// so command output on stdout stays scriptable.
func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("%w: invalid log level %q", errInvalidFlags, level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("%w: invalid log format %q: expected text or json",
			errInvalidFlags, format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
