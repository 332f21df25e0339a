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

// SeqnoAllocator hands out a monotonic sequence of bySeqno values per
// vBucket (spec.md section 2, component 1: "SeqnoAllocator").
type SeqnoAllocator struct {
	last int64
}

// NewSeqnoAllocator returns an allocator that will hand out startSeqno+1 as
// its first value.
func NewSeqnoAllocator(startSeqno int64) *SeqnoAllocator {
	return &SeqnoAllocator{last: startSeqno}
}

// Next allocates and returns the next sequence number.
func (a *SeqnoAllocator) Next() int64 {
	return atomic.AddInt64(&a.last, 1)
}

// Observe advances the allocator's high-water mark to at least seqno,
// used when replaying items that already carry an explicit bySeqno (e.g.
// replica replay of a DCP stream).
func (a *SeqnoAllocator) Observe(seqno int64) {
	for {
		cur := atomic.LoadInt64(&a.last)
		if seqno <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&a.last, cur, seqno) {
			return
		}
	}
}

// Last returns the most recently allocated or observed seqno.
func (a *SeqnoAllocator) Last() int64 {
	return atomic.LoadInt64(&a.last)
}
