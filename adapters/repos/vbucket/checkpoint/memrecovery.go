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
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	kvtask "github.com/weaviate/kvcheckpoint/entities/task"
)

// VBucket is the subset of Manager that MemRecoveryTask needs from a
// managed vBucket, kept narrow so the task can be tested against fakes.
type VBucket interface {
	VBucketID() uint16
	MemoryUsage() int64
	RemoveClosedUnreferenced() (int, error)
	ExpelItems() (int64, error)
	SlowestNonPersistenceCursor() (string, bool)
	DropCursor(name string) error
}

// MemRecoveryTask implements the three-phase memory reclaim algorithm of
// spec.md section 4.4: attempt_checkpoint_removal, then attempt_item_
// expelling, then (if still above lowWat()) attempt_cursor_
// dropping followed by a retry of removal. It runs as one Func on a shared
// entities/task.Scheduler, one invocation per wakeup.
type MemRecoveryTask struct {
	mu       sync.Mutex
	vbuckets map[uint16]VBucket

	memUsed func() int64
	lowWat  func() int64

	logger logrus.FieldLogger
}

// NewMemRecoveryTask builds a task that, each time it runs, checks memUsed()
// against lowWat() and walks vbuckets (ordered by memory usage, descending,
// with vbid as a tie-break) through the reclaim phases until either the
// watermark is satisfied or every vbucket has been tried with no further
// progress.
func NewMemRecoveryTask(memUsed, lowWat func() int64, logger logrus.FieldLogger) *MemRecoveryTask {
	return &MemRecoveryTask{
		vbuckets: map[uint16]VBucket{},
		memUsed:  memUsed,
		lowWat:   lowWat,
		logger:   logger,
	}
}

// Register adds or replaces the vbucket this task considers during a run.
func (t *MemRecoveryTask) Register(vb VBucket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vbuckets[vb.VBucketID()] = vb
}

// Unregister removes a vbucket, e.g. once it has been deleted or has moved
// off this node.
func (t *MemRecoveryTask) Unregister(vbid uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.vbuckets, vbid)
}

// AsFunc adapts Run to the entities/task.Func contract, always rescheduling
// itself: memory recovery runs for the life of the node.
func (t *MemRecoveryTask) AsFunc(interval time.Duration) kvtask.Func {
	return func(shouldBreak kvtask.ShouldBreak) (kvtask.Outcome, time.Duration) {
		t.Run(shouldBreak)
		return kvtask.Reschedule, interval
	}
}

// Run executes one full reclaim pass: Phase A across every vbucket, then
// (if still over watermark) Phase B across every vbucket, then (if still
// over watermark) one round of Phase C followed by a retry of Phase A.
// Returns early if shouldBreak reports true between vbuckets.
func (t *MemRecoveryTask) Run(shouldBreak kvtask.ShouldBreak) {
	if t.memUsed == nil || t.lowWat == nil {
		return
	}
	if t.memUsed() <= t.lowWat() {
		return
	}

	order := t.orderedVBuckets()

	if t.phaseRemoval(order, shouldBreak) {
		return
	}
	if t.phaseExpel(order, shouldBreak) {
		return
	}
	if t.phaseDropCursor(order, shouldBreak) {
		return
	}
	// One more removal pass: dropping a cursor may have freed the
	// checkpoints it alone referenced.
	t.phaseRemoval(order, shouldBreak)
}

// orderedVBuckets snapshots the registered vbuckets sorted by memory usage
// descending, vbid ascending as a tie-break (spec section 4.4: "the
// busiest vbuckets are targeted first").
func (t *MemRecoveryTask) orderedVBuckets() []VBucket {
	t.mu.Lock()
	out := make([]VBucket, 0, len(t.vbuckets))
	for _, vb := range t.vbuckets {
		out = append(out, vb)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		mi, mj := out[i].MemoryUsage(), out[j].MemoryUsage()
		if mi != mj {
			return mi > mj
		}
		return out[i].VBucketID() < out[j].VBucketID()
	})
	return out
}

// phaseRemoval runs attempt_checkpoint_removal across order, returning true
// once memUsed() drops to or below lowWat().
func (t *MemRecoveryTask) phaseRemoval(order []VBucket, shouldBreak kvtask.ShouldBreak) bool {
	for _, vb := range order {
		if shouldBreak() {
			return true
		}
		if t.memUsed() <= t.lowWat() {
			return true
		}
		n, err := vb.RemoveClosedUnreferenced()
		if err != nil {
			t.logErr("checkpoint_removal", vb.VBucketID(), err)
			continue
		}
		if n > 0 {
			t.logProgress("checkpoint_removal", vb.VBucketID(), n)
		}
	}
	return t.memUsed() <= t.lowWat()
}

// phaseExpel runs attempt_item_expelling across order, returning true once
// memUsed() drops to or below lowWat().
func (t *MemRecoveryTask) phaseExpel(order []VBucket, shouldBreak kvtask.ShouldBreak) bool {
	for _, vb := range order {
		if shouldBreak() {
			return true
		}
		if t.memUsed() <= t.lowWat() {
			return true
		}
		freed, err := vb.ExpelItems()
		if err != nil {
			t.logErr("item_expelling", vb.VBucketID(), err)
			continue
		}
		if freed > 0 {
			t.logProgress("item_expelling", vb.VBucketID(), int(freed))
		}
	}
	return t.memUsed() <= t.lowWat()
}

// phaseDropCursor runs attempt_cursor_dropping once per vbucket in order,
// dropping at most the single slowest non-persistence cursor per vbucket
// per pass (spec section 4.4: dropping is a last resort, applied
// incrementally). Returns true once memUsed() drops to or below lowWat().
func (t *MemRecoveryTask) phaseDropCursor(order []VBucket, shouldBreak kvtask.ShouldBreak) bool {
	for _, vb := range order {
		if shouldBreak() {
			return true
		}
		if t.memUsed() <= t.lowWat() {
			return true
		}
		name, ok := vb.SlowestNonPersistenceCursor()
		if !ok {
			continue
		}
		if err := vb.DropCursor(name); err != nil {
			t.logErr("cursor_dropping", vb.VBucketID(), err)
			continue
		}
		t.logger.WithFields(logrus.Fields{
			"action": "cursor_dropping",
			"vbid":   vb.VBucketID(),
			"cursor": name,
		}).Warn("dropped cursor to relieve checkpoint memory pressure")
	}
	return t.memUsed() <= t.lowWat()
}

func (t *MemRecoveryTask) logErr(phase string, vbid uint16, err error) {
	if t.logger == nil {
		return
	}
	t.logger.WithFields(logrus.Fields{
		"action": phase,
		"vbid":   vbid,
	}).WithError(err).Error("memory recovery phase failed")
}

func (t *MemRecoveryTask) logProgress(phase string, vbid uint16, n int) {
	if t.logger == nil {
		return
	}
	t.logger.WithFields(logrus.Fields{
		"action": phase,
		"vbid":   vbid,
		"count":  n,
	}).Debug("memory recovery phase made progress")
}
