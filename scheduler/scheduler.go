// Package scheduler runs background work on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Task is run on every tick. ctx is cancelled when the scheduler stops.
type Task func(ctx context.Context)

// Scheduler runs a Task at a fixed interval in one background goroutine.
// Runs never overlap: a slow run delays the next tick.
type Scheduler struct {
	interval  time.Duration
	task      Task
	immediate bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Scheduler)

// WithImmediate runs the task once as soon as the scheduler starts
func WithImmediate() Option {
	return func(s *Scheduler) {
		s.immediate = true
	}
}

// New creates a Scheduler; call Start to begin running task
func New(interval time.Duration, task Task, opts ...Option) *Scheduler {
	s := &Scheduler{interval: interval, task: task}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. Starting a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	if s.immediate {
		s.task(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.task(ctx)
		}
	}
}

// Stop cancels the task context and waits for the current run to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}
