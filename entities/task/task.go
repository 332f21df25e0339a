//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ V /| |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2026 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package task generalises the executor/thread-pool boundary the core
// invokes but does not own (spec section 1, "Executor/thread pool"; section
// 9, "Deep class hierarchies of tasks"). It is adapted from
// entities/cyclemanager's CycleFunc/ShouldBreakFunc contract: one function,
// invoked cooperatively, that reports whether it did work and when to run
// again.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ShouldBreak reports whether the running Func must return control as soon
// as possible because a stop was requested.
type ShouldBreak func() bool

// Outcome is a Func's disposition after one invocation.
type Outcome int

const (
	// Done indicates the task has no more work and need not be rescheduled.
	Done Outcome = iota
	// Reschedule indicates the task should run again after its returned
	// delay.
	Reschedule
)

// Func is the single capability every task in this module exposes: the
// scheduler outside this package supplies the goroutine/worker, this
// package only decides what runs and when.
type Func func(shouldBreak ShouldBreak) (Outcome, time.Duration)

// Scheduler runs a single Func on a timer, honouring cooperative
// cancellation. It mirrors cyclemanager.CycleManager's Start/Stop/StopAndWait
// contract, generalised from "run LSM compaction cycles" to "run a
// background reclaim task such as checkpoint memory recovery or destroyer
// drains".
type Scheduler struct {
	mu       sync.Mutex
	interval time.Duration
	logger   logrus.FieldLogger
	running  bool
	stop     chan struct{}
	stopped  chan struct{}
	fn       Func
	name     string
}

// NewScheduler builds a Scheduler that invokes fn approximately every
// interval until stopped. name is used only for log context.
func NewScheduler(name string, interval time.Duration, logger logrus.FieldLogger, fn Func) *Scheduler {
	return &Scheduler{
		interval: interval,
		logger:   logger,
		fn:       fn,
		name:     name,
	}
}

// Start runs the scheduler loop in a new goroutine. A no-op if already
// running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	go s.run(s.stop, s.stopped)
}

func (s *Scheduler) run(stop, stopped chan struct{}) {
	defer close(stopped)

	delay := s.interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	shouldBreak := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			outcome, next := s.invoke(shouldBreak)
			if outcome == Done {
				s.mu.Lock()
				if s.stopped == stopped {
					s.running = false
				}
				s.mu.Unlock()
				return
			}
			if next <= 0 {
				next = s.interval
			}
			timer.Reset(next)
		}
	}
}

func (s *Scheduler) invoke(shouldBreak ShouldBreak) (outcome Outcome, next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"action": "task_scheduler",
				"task":   s.name,
			}).Errorf("task panic: %v", r)
			outcome, next = Reschedule, s.interval
		}
	}()
	return s.fn(shouldBreak)
}

// Stop signals the loop to exit and returns a channel closed once it has.
// Mirrors cyclemanager.CycleManager.Stop: non-blocking, idempotent.
func (s *Scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	close(s.stop)
	s.running = false
	return s.stopped
}

// StopAndWait stops the scheduler and blocks until it exits or ctx expires.
func (s *Scheduler) StopAndWait(ctx context.Context) error {
	stopped := s.Stop()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the loop is currently active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
