// Package crontest holds doubles for the scheduler tests.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/robobrain/internal/cron"
)

// MockJob runs RunFunc, or nothing, on every tick and counts the ticks.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	runs atomic.Int64
}

var _ cron.Job = (*MockJob)(nil)

func (m *MockJob) Name() string     { return m.NameVal }
func (m *MockJob) Schedule() string { return m.ScheduleVal }

func (m *MockJob) Run(ctx context.Context) error {
	m.runs.Add(1)
	if m.RunFunc == nil {
		return nil
	}
	return m.RunFunc(ctx)
}

// CallCount returns how many times Run was entered.
func (m *MockJob) CallCount() int {
	return int(m.runs.Load())
}

// MockPruner reports Pruned sessions removed on every call.
type MockPruner struct {
	Pruned int
	Calls  atomic.Int32
}

func (m *MockPruner) PruneSessions() int {
	m.Calls.Add(1)
	return m.Pruned
}
