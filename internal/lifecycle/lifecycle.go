// Package lifecycle holds the drain flag shared between the signal handler
// and the health endpoint.
package lifecycle

import "sync/atomic"

// Flag is an instance-owned shutdown marker. main flips it when SIGTERM or
// SIGINT arrives; the health handler reports shutting-down while it is set.
type Flag struct {
	shuttingDown atomic.Bool
}

// SetShuttingDown records whether the process is draining.
func (f *Flag) SetShuttingDown(v bool) {
	f.shuttingDown.Store(v)
}

// ShuttingDown reports whether the process is draining and should not
// receive new traffic.
func (f *Flag) ShuttingDown() bool {
	return f.shuttingDown.Load()
}
