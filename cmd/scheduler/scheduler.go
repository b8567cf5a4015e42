package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobbot/internal/orchestrator"
	"jobbot/internal/shared/telemetry"
)

const defaultInterval = 6 * time.Hour

type cycleFunc func(ctx context.Context, opts orchestrator.CycleOptions) (orchestrator.CycleReport, error)

// scheduler runs cycles on an interval and remembers the last finished one for the status API.
type scheduler struct {
	cycle    cycleFunc
	interval time.Duration

	mu   sync.RWMutex
	last orchestrator.CycleReport
	ran  bool
}

func newScheduler(cycle cycleFunc, interval time.Duration) *scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &scheduler{cycle: cycle, interval: interval}
}

func (s *scheduler) LastCycle() (orchestrator.CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.ran
}

// loop runs a cycle at once and then every interval until stop is done.
// Cycles use work, so stop never interrupts one that already started.
func (s *scheduler) loop(stop, work context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if stop.Err() != nil || work.Err() != nil {
			return
		}
		s.runOnce(work)
		select {
		case <-stop.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *scheduler) runOnce(ctx context.Context) {
	id := uuid.NewString()
	telemetry.Info("scheduler.cycle_started", map[string]any{"cycle_id": id})

	report, err := s.cycle(ctx, orchestrator.CycleOptions{})

	s.mu.Lock()
	s.last = report
	s.ran = true
	s.mu.Unlock()

	fields := map[string]any{
		"cycle_id": id,
		"applied":  report.Applied,
		"failed":   report.Failed,
		"degraded": report.Degraded(),
	}
	if err != nil {
		fields["error"] = err
		telemetry.Error("scheduler.cycle_failed", fields)
		return
	}
	telemetry.Info("scheduler.cycle_finished", fields)
}
