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

package checkpoint

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	kvtask "github.com/weaviate/kvcheckpoint/entities/task"
)

// Destroyer is a single per-shard task that owns a queue of Detached
// checkpoints and drains them outside the writer's critical path (spec.md
// section 4.5). pending_memory monotonically tracks total bytes in queued
// but undestroyed checkpoints.
type Destroyer struct {
	mu      sync.Mutex
	pending []*Checkpoint
	bytes   int64

	logger    logrus.FieldLogger
	scheduler *kvtask.Scheduler
}

// NewDestroyer builds a Destroyer and its draining Scheduler; call Start to
// begin draining on the given interval.
func NewDestroyer(logger logrus.FieldLogger, drainInterval time.Duration) *Destroyer {
	d := &Destroyer{logger: logger}
	d.scheduler = kvtask.NewScheduler("checkpoint-destroyer", drainInterval, logger, d.drainOnce)
	return d
}

// Start begins the background drain loop.
func (d *Destroyer) Start() { d.scheduler.Start() }

// Stop halts the drain loop.
func (d *Destroyer) Stop() <-chan struct{} { return d.scheduler.Stop() }

// Enqueue transfers ownership of checkpoints (already marked Detached by
// the caller) into the destroyer's queue, accumulating pending memory.
func (d *Destroyer) Enqueue(checkpoints []*Checkpoint) {
	if len(checkpoints) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range checkpoints {
		d.bytes += c.MemoryUsage()
	}
	d.pending = append(d.pending, checkpoints...)
}

// PendingMemory returns the total bytes in queued-but-undestroyed
// checkpoints.
func (d *Destroyer) PendingMemory() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes
}

// PendingCount returns the number of checkpoints awaiting destruction.
func (d *Destroyer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// DrainOnce destroys every queued checkpoint synchronously; exported for
// tests and for callers that want an immediate, non-scheduled drain.
func (d *Destroyer) DrainOnce() int {
	d.mu.Lock()
	victims := d.pending
	d.pending = nil
	d.bytes = 0
	d.mu.Unlock()

	for _, c := range victims {
		d.destroy(c)
	}
	return len(victims)
}

func (d *Destroyer) destroy(c *Checkpoint) {
	// In this implementation destruction is simply dropping the last
	// reference; the garbage collector reclaims the list and its items.
	// A product KVStore-backed destroyer would additionally release any
	// off-heap buffers here.
	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{
			"action":     "checkpoint_destroy",
			"checkpoint": c.ID(),
			"bytes":      c.MemoryUsage(),
		}).Debug("destroying detached checkpoint")
	}
}

func (d *Destroyer) drainOnce(shouldBreak kvtask.ShouldBreak) (kvtask.Outcome, time.Duration) {
	d.DrainOnce()
	return kvtask.Reschedule, 0
}
