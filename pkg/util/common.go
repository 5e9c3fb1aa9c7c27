// Package util holds small helpers shared across packages.
package util

import "log/slog"

// CloseWithLog runs closeFn and logs a failure instead of returning it,
// for teardown steps and defer sites that have nowhere to send an error.
func CloseWithLog(closeFn func() error, what string) {
	if err := closeFn(); err != nil {
		slog.Error("close "+what, "err", err)
	}
}
