package worker

import "context"

// Worker is a long-running background process supervised by the Supervisor.
//
// Run blocks until the context is cancelled or a fatal error occurs. A nil or
// context.Canceled return means graceful shutdown; anything else is fatal for
// that worker only.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}
