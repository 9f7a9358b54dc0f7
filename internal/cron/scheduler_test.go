package cron_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/robobrain/internal/cron"
	"github.com/flemzord/robobrain/internal/cron/crontest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		jobs    []*crontest.MockJob
		wantErr bool
	}{
		{
			name: "valid",
			jobs: []*crontest.MockJob{{NameVal: "a", ScheduleVal: "* * * * *"}},
		},
		{
			name: "duplicate name",
			jobs: []*crontest.MockJob{
				{NameVal: "a", ScheduleVal: "* * * * *"},
				{NameVal: "a", ScheduleVal: "*/5 * * * *"},
			},
			wantErr: true,
		},
		{
			name:    "invalid schedule",
			jobs:    []*crontest.MockJob{{NameVal: "bad", ScheduleVal: "invalid"}},
			wantErr: true,
		},
		{
			name:    "six fields",
			jobs:    []*crontest.MockJob{{NameVal: "secs", ScheduleVal: "0 * * * * *"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := cron.NewScheduler(discardLogger())
			var err error
			for _, j := range tt.jobs {
				if err = s.RegisterJob(j); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("RegisterJob error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(discardLogger())
	if err := s.RegisterJob(&crontest.MockJob{NameVal: "noop", ScheduleVal: "* * * * *"}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if _, ok := s.Next("noop"); ok {
		t.Error("Next should be unknown before Start")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	next, ok := s.Next("noop")
	if !ok || next.IsZero() {
		t.Errorf("Next = %v, %v; want a scheduled time", next, ok)
	}
	if next.After(time.Now().Add(time.Minute + time.Second)) {
		t.Errorf("Next = %v, want within a minute", next)
	}

	if err := s.RegisterJob(&crontest.MockJob{NameVal: "late", ScheduleVal: "* * * * *"}); err == nil {
		t.Error("registering after Start should fail")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ok := &crontest.MockJob{NameVal: "ok", ScheduleVal: "* * * * *"}
	failing := &crontest.MockJob{
		NameVal:     "failing",
		ScheduleVal: "* * * * *",
		RunFunc:     func(context.Context) error { return boom },
	}

	s := cron.NewScheduler(discardLogger())
	for _, j := range []cron.Job{ok, failing} {
		if err := s.RegisterJob(j); err != nil {
			t.Fatalf("RegisterJob: %v", err)
		}
	}

	if err := s.RunNow(context.Background(), "ok"); err != nil {
		t.Fatalf("RunNow(ok): %v", err)
	}
	if ok.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", ok.CallCount())
	}
	if err := s.RunNow(context.Background(), "failing"); !errors.Is(err, boom) {
		t.Errorf("RunNow(failing) = %v, want %v", err, boom)
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, cron.ErrUnknownJob) {
		t.Errorf("RunNow(missing) = %v, want ErrUnknownJob", err)
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	slow := &crontest.MockJob{
		NameVal:     "slow",
		ScheduleVal: "* * * * *",
		RunFunc: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}

	s := cron.NewScheduler(discardLogger())
	if err := s.RegisterJob(slow); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.RunNow(context.Background(), "slow")
	}()
	<-started

	if err := s.RunNow(context.Background(), "slow"); !errors.Is(err, cron.ErrJobRunning) {
		t.Errorf("overlapping RunNow = %v, want ErrJobRunning", err)
	}
	close(release)
	wg.Wait()

	if slow.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", slow.CallCount())
	}
}
