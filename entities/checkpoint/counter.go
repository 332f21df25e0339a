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

import "sync/atomic"

// SaturatingCounter is a non-negative atomic counter: Add with a negative
// delta never lets the value underflow past zero. Used for memory accounting and cursor counts,
// both of which are read concurrently by tasks holding only a snapshot
// iterator (see spec section 5, shared-resource policy).
type SaturatingCounter struct {
	v int64
}

// Add adds delta (may be negative) and returns the new value.
func (c *SaturatingCounter) Add(delta int64) int64 {
	for {
		old := atomic.LoadInt64(&c.v)
		next := old + delta
		if next < 0 {
			next = 0
		}
		if atomic.CompareAndSwapInt64(&c.v, old, next) {
			return next
		}
	}
}

// Load returns the current value.
func (c *SaturatingCounter) Load() int64 {
	return atomic.LoadInt64(&c.v)
}

// Set forces the value, clamped to zero.
func (c *SaturatingCounter) Set(v int64) {
	if v < 0 {
		v = 0
	}
	atomic.StoreInt64(&c.v, v)
}

// MemoryTracker forwards byte-count deltas to an optional parent tracker so
// ownership transfers (e.g. a checkpoint handed from a manager to a
// destroyer) are constant-time: swap the parent pointer, the local value is
// untouched.
type MemoryTracker struct {
	local  SaturatingCounter
	parent *MemoryTracker
}

// Add records delta locally and, if a parent is attached, forwards it.
func (t *MemoryTracker) Add(delta int64) {
	t.local.Add(delta)
	if t.parent != nil {
		t.parent.Add(delta)
	}
}

// Bytes returns the locally tracked total.
func (t *MemoryTracker) Bytes() int64 {
	return t.local.Load()
}

// SetParent re-parents this tracker. The parent immediately receives the
// current local total so its aggregate stays correct across the swap.
func (t *MemoryTracker) SetParent(parent *MemoryTracker) {
	if t.parent == parent {
		return
	}
	if t.parent != nil {
		t.parent.Add(-t.local.Load())
	}
	t.parent = parent
	if parent != nil {
		parent.Add(t.local.Load())
	}
}
