// Package cron runs periodic maintenance such as dropping conversations
// nobody has continued for a while.
package cron

import (
	"context"
	"errors"
)

// Job defines a periodic background task.
type Job interface {
	// Name identifies the job in logs. Names are unique per scheduler.
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/10 * * * *").
	Schedule() string

	// Run executes the job. Implementations should honor ctx cancellation.
	Run(ctx context.Context) error
}

// Errors returned by the Scheduler.
var (
	ErrUnknownJob = errors.New("cron: unknown job")
	ErrJobRunning = errors.New("cron: job already running")
)
