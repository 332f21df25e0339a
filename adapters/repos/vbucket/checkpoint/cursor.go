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
	"container/list"
	"sync"

	ckpt "github.com/weaviate/kvcheckpoint/entities/checkpoint"
)

// DropState is whether a cursor is still actively tracked or has been
// dropped by memory pressure.
type DropState uint8

const (
	CursorActive DropState = iota
	CursorDropped
)

// Cursor is a positioned reader over a checkpoint list: positioned
// *before* the next item to return, advanced before dereference (spec
// section 4.2). Consumers cross checkpoint boundaries transparently.
type Cursor struct {
	mu sync.Mutex

	name string

	checkpointList *checkpointList // shared with the owning Manager

	checkpoint *Checkpoint   // the checkpoint this cursor currently sits inside
	pos        *list.Element // last-returned element within that checkpoint

	lastReturnedSeqno int64
	mustSendEnd       bool
	dropState         DropState
}

// Name returns the cursor's unique-within-manager identifier.
func (cur *Cursor) Name() string {
	return cur.name
}

// State reports whether the cursor is still Active.
func (cur *Cursor) State() DropState {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.dropState
}

// LastReturnedSeqno is the bySeqno of the last item this cursor returned
// (0 if nothing has been returned yet).
func (cur *Cursor) LastReturnedSeqno() int64 {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.lastReturnedSeqno
}

// checkpointAt returns the checkpoint this cursor currently sits inside.
func (cur *Cursor) checkpointAt() *Checkpoint {
	return cur.checkpoint
}

// posSnapshot returns the cursor's current list position, used by the
// Manager to tell a Checkpoint.Append call where the persistence cursor
// sits when appending to the checkpoint the cursor is currently inside.
func (cur *Cursor) posSnapshot() *list.Element {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.pos
}

// Advance moves the cursor forward by one position and returns the item
// there (nil, false if the cursor reached the end of the list without a
// further item). isLastInCheckpoint reports whether the returned item is
// the final live item of its checkpoint.
func (cur *Cursor) Advance() (item *ckpt.QueuedItem, isLastInCheckpoint bool, ok bool) {
	cur.mu.Lock()
	defer cur.mu.Unlock()

	for {
		ckptNode := cur.checkpoint
		if ckptNode == nil {
			return nil, false, false
		}

		if cur.pos == nil {
			cur.pos = ckptNode.IterBegin()
		}

		next := cur.pos.Next()
		if next == nil {
			// Exhausted this checkpoint; cross into the next one if it
			// exists, skipping its leading empty sentinel.
			idx := cur.checkpointList.indexOf(ckptNode)
			nextCkpt := cur.checkpointList.at(idx + 1)
			if nextCkpt == nil {
				return nil, false, false
			}
			ckptNode.DecRefCursor()
			cur.checkpoint = nextCkpt
			cur.pos = nextCkpt.IterBegin()
			nextCkpt.IncRefCursor()
			continue
		}

		cur.pos = next
		it := ItemAt(next)
		if it == nil {
			// Tombstoned (SuccessPersistAgain) slot: transparently skip.
			continue
		}

		cur.lastReturnedSeqno = it.BySeqno
		return it, next.Next() == nil, true
	}
}

// checkpointList is the shared view of a manager's ordered checkpoints that
// cursors walk across, guarded by its own RWMutex. The Manager serialises
// all mutation through its own lock (spec section 5); this wrapper supports
// append, removal at arbitrary indexes, and reads for cursors mid-walk.
type checkpointList struct {
	mu    sync.RWMutex
	items []*Checkpoint
}

func newCheckpointList() *checkpointList {
	return &checkpointList{}
}

func (l *checkpointList) at(i int) *Checkpoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.items) {
		return nil
	}
	return l.items[i]
}

func (l *checkpointList) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *checkpointList) append(c *Checkpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, c)
}

// indexOf returns the position of c in the list, or -1.
func (l *checkpointList) indexOf(c *Checkpoint) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, item := range l.items {
		if item == c {
			return i
		}
	}
	return -1
}

// removeIndexes deletes checkpoints at the given indexes (must be sorted
// ascending, and each must be unreferenced by the caller's own check) and
// returns the removed checkpoints, shifting remaining ones down.
func (l *checkpointList) removeIndexes(idxs []int) []*Checkpoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	removedSet := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		removedSet[i] = true
	}

	var removed []*Checkpoint
	kept := l.items[:0:0]
	for i, c := range l.items {
		if removedSet[i] {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	l.items = kept
	return removed
}

func (l *checkpointList) all() []*Checkpoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Checkpoint, len(l.items))
	copy(out, l.items)
	return out
}
