package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Task is one run of a periodic job.
type Task func(ctx context.Context) error

type entry struct {
	name     string
	interval time.Duration
	fn       Task
}

// Scheduler runs named tasks at fixed intervals. Runs of the same task never
// overlap: a slow run delays the next tick instead of stacking.
type Scheduler struct {
	log     *log.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	entries []entry
}

func NewScheduler(logger *log.Logger) *Scheduler {
	return &Scheduler{log: logger}
}

// Every registers fn to run once per interval after Run is called.
func (s *Scheduler) Every(name string, interval time.Duration, fn Task) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry{name: name, interval: interval, fn: fn})
	return s
}

// Run starts every registered task and blocks until ctx is cancelled and
// all in-flight runs have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	for _, e := range entries {
		if e.interval <= 0 {
			return fmt.Errorf("job %s: interval must be positive, got %s", e.name, e.interval)
		}
	}

	for _, e := range entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}

	s.log.Printf("scheduler started with %d jobs", len(entries))
	<-ctx.Done()
	s.wg.Wait()
	s.log.Println("scheduler stopped")

	return nil
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runOnce(ctx, e); err != nil && ctx.Err() == nil {
				s.log.Printf("job %s: %v", e.name, err)
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, e entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return e.fn(ctx)
}
