// Package shutdown centralizes signal handling and fatal-exit behavior.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"parlor/pkg/logger"
)

// Context returns a context canceled on SIGINT or SIGTERM.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Fatal logs a startup-fatal error and exits. Used before the HTTP
// server is up, where there is nothing to drain.
func Fatal(msg string, err error) {
	logger.Error("startup_fatal", "msg", msg, "error", err.Error())
	os.Exit(2)
}
