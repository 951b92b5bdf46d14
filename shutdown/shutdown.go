// Package shutdown routes termination signals to the session front ends.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Notify relays the platform's termination signals to ch.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, signals...)
}

// Context returns a copy of parent that is cancelled by the first
// termination signal. Calling stop releases the signal handler.
func Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
