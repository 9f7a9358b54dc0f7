package cron

import (
	"context"
	"log/slog"
)

// DefaultPruneSchedule runs session pruning every ten minutes.
const DefaultPruneSchedule = "*/10 * * * *"

// SessionPruner drops idle conversations and reports how many it removed.
type SessionPruner interface {
	PruneSessions() int
}

// SessionPruneJob removes sessions idle longer than the brain's TTL.
type SessionPruneJob struct {
	Sessions     SessionPruner
	ScheduleExpr string
	Logger       *slog.Logger
}

var _ Job = (*SessionPruneJob)(nil)

// Name implements Job.
func (j *SessionPruneJob) Name() string { return "session.prune" }

// Schedule implements Job.
func (j *SessionPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultPruneSchedule
}

// Run implements Job.
func (j *SessionPruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := j.Sessions.PruneSessions(); n > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned idle sessions", "count", n)
	}
	return nil
}
