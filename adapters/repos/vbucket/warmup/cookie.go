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

package warmup

import "sync"

// CookieOutcome is delivered to a suspended cookie when the queue drains.
type CookieOutcome uint8

const (
	CookieSuccess CookieOutcome = iota
	CookieDisconnect
)

// Cookie is the minimal per-client-connection handle the core suspends
// while a vBucket it addressed is still warming up (spec.md section 4.6,
// key invariant 1). Resolve is invoked exactly once, either with Success
// when PopulateVBucketMap completes or Disconnect on forced shutdown.
type Cookie struct {
	VBucketID uint16
	Resolve   func(CookieOutcome)
}

// CookieQueue holds cookies suspended on vBuckets not yet visible to
// clients, under a mutex distinct from the state lock so the state lock is
// never held across a callback invocation (spec.md section 5,
// shared-resource policy).
type CookieQueue struct {
	mu      sync.Mutex
	pending []Cookie
	drained bool
}

// Suspend enqueues a cookie. If the queue has already drained (a racing
// caller arrived after PopulateVBucketMap completed or after shutdown), the
// cookie is resolved immediately with outcome.
func (q *CookieQueue) Suspend(c Cookie, outcomeIfAlreadyDrained CookieOutcome) {
	q.mu.Lock()
	if q.drained {
		q.mu.Unlock()
		c.Resolve(outcomeIfAlreadyDrained)
		return
	}
	q.pending = append(q.pending, c)
	q.mu.Unlock()
}

// Drain resolves every pending cookie with outcome exactly once; subsequent
// calls (and subsequent Suspend calls) are no-ops on the already-drained
// queue (spec.md property P6: "drained exactly once").
func (q *CookieQueue) Drain(outcome CookieOutcome) {
	q.mu.Lock()
	if q.drained {
		q.mu.Unlock()
		return
	}
	pending := q.pending
	q.pending = nil
	q.drained = true
	q.mu.Unlock()

	for _, c := range pending {
		c.Resolve(outcome)
	}
}

// Len reports the number of cookies currently suspended (diagnostic only).
func (q *CookieQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
