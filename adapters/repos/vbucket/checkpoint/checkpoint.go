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

// Package checkpoint implements the per-vBucket write log: a bounded,
// append-only, deduplicating segment of QueuedItems (Checkpoint), the
// positioned readers over it (CheckpointCursor), and the manager that owns
// an ordered list of checkpoints per vBucket. It is adapted from the
// teacher's adapters/repos/db/lsmkv package: a Checkpoint plays the role of
// a Memtable (in-memory, deduplicating, backed by an append-only log), a
// CheckpointCursor the role of a cursor over the LSM store, and
// CheckpointManager the role of lsmkv.Bucket/Store as the coordinating
// owner of the list.
package checkpoint

import (
	"container/list"
	"sync"

	"github.com/pkg/errors"

	ckpt "github.com/weaviate/kvcheckpoint/entities/checkpoint"
)

// entry is the value stored in each items list element: the item itself,
// a monotonically increasing order used for O(1) position comparisons
// (replacing raw iterator-order arithmetic), and an invalidated flag used
// by SuccessPersistAgain to tombstone a stale slot in place rather than
// unlink it out from under a cursor that might still be positioned there.
type entry struct {
	order       int64
	item        *ckpt.QueuedItem
	invalidated bool
}

// Checkpoint is a bounded, append-only segment of QueuedItems with two
// per-type deduplication indexes, allocator-tracked memory accounting, and
// an Open/Closed/Detached lifecycle. See spec.md section 4.1.
type Checkpoint struct {
	mu sync.Mutex

	id   int64
	typ  ckpt.Type
	state ckpt.State

	items     *list.List
	nextOrder int64

	committedIndex map[string]*list.Element
	preparedIndex  map[string]*list.Element

	snapStartSeqno       int64
	snapEndSeqno         int64
	visibleSnapEndSeqno  int64
	highCompletedSeqno   *int64
	highPreparedSeqno    *int64
	maxDeletedRevSeqno   *uint64
	highestExpelledSeqno int64
	highSeqno            int64

	numCursors ckpt.SaturatingCounter

	queuedItemsBytes  ckpt.MemoryTracker
	keyIndexBytes     ckpt.MemoryTracker
	queueOverheadBytes ckpt.MemoryTracker
}

const (
	keyIndexEntryOverhead = 48
	queueEntryOverhead    = 24
)

// New creates an Open checkpoint with the given id and snapshot bounds. The
// first element is always the empty sentinel (invariant 1), immediately
// followed by checkpoint_start (invariant: items begin with empty, then
// checkpoint_start, then 0..N user/system items).
func New(id int64, typ ckpt.Type, snapStart, snapEnd int64, parent *ckpt.MemoryTracker) *Checkpoint {
	c := &Checkpoint{
		id:                  id,
		typ:                 typ,
		state:               ckpt.StateOpen,
		items:               list.New(),
		committedIndex:      map[string]*list.Element{},
		preparedIndex:       map[string]*list.Element{},
		snapStartSeqno:      snapStart,
		snapEndSeqno:        snapEnd,
		visibleSnapEndSeqno: snapEnd,
		highSeqno:           snapStart - 1,
	}
	c.queuedItemsBytes.SetParent(parent)
	c.keyIndexBytes.SetParent(parent)
	c.queueOverheadBytes.SetParent(parent)

	c.pushMeta(&ckpt.QueuedItem{Operation: ckpt.OpEmpty, BySeqno: snapStart})
	c.pushMeta(&ckpt.QueuedItem{Operation: ckpt.OpCheckpointStart, BySeqno: snapStart})
	return c
}

// ID returns the checkpoint's strictly-increasing identifier.
func (c *Checkpoint) ID() int64 { return c.id }

// Type returns whether this is a Memory or Disk checkpoint.
func (c *Checkpoint) Type() ckpt.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typ
}

// State returns the current lifecycle state.
func (c *Checkpoint) State() ckpt.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SnapshotRange returns the [snap_start, snap_end] pair forwarded to
// replicas.
func (c *Checkpoint) SnapshotRange() ckpt.SnapshotRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ckpt.SnapshotRange{Start: c.snapStartSeqno, End: c.snapEndSeqno, VisibleEnd: c.visibleSnapEndSeqno}
}

// HighSeqno returns the highest bySeqno assigned to any item appended so
// far (meta items included, per the "checkpoint_end uses
// last_mutation_seqno + 1" convention applied at Close).
func (c *Checkpoint) HighSeqno() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highSeqno
}

// HighestExpelledSeqno returns the monotone expel watermark.
func (c *Checkpoint) HighestExpelledSeqno() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highestExpelledSeqno
}

// NumItems returns the total element count, including meta items.
func (c *Checkpoint) NumItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// MemoryUsage returns the total bytes currently tracked by this checkpoint.
func (c *Checkpoint) MemoryUsage() int64 {
	return c.queuedItemsBytes.Bytes() + c.keyIndexBytes.Bytes() + c.queueOverheadBytes.Bytes()
}

// IncRefCursor and DecRefCursor maintain num_cursors_in_checkpoint, read by
// tasks that only hold a manager-level snapshot iterator (spec section 5).
func (c *Checkpoint) IncRefCursor() { c.numCursors.Add(1) }
func (c *Checkpoint) DecRefCursor() { c.numCursors.Add(-1) }
func (c *Checkpoint) NumCursors() int64 { return c.numCursors.Load() }

func (c *Checkpoint) pushMeta(item *ckpt.QueuedItem) *list.Element {
	e := &entry{order: c.nextOrder, item: item}
	c.nextOrder++
	el := c.items.PushBack(e)
	if item.BySeqno > c.highSeqno {
		c.highSeqno = item.BySeqno
	}
	return el
}

func (c *Checkpoint) indexFor(ns ckpt.Namespace) map[string]*list.Element {
	if ns == ckpt.NamespacePrepared {
		return c.preparedIndex
	}
	return c.committedIndex
}

// Append adds item to the checkpoint, deduplicating against the namespaced
// key index. persistenceCursorHere, when non-nil, is the persistence
// cursor's current position *within this checkpoint*; callers (the
// CheckpointManager) pass nil when the persistence cursor has not yet
// reached this checkpoint, which is always true for every case but "cursor
// currently inside this checkpoint" because Append only ever targets the
// Open (and therefore last) checkpoint in the manager's list.
func (c *Checkpoint) Append(item *ckpt.QueuedItem, persistenceCursorHere *list.Element) (ckpt.QueueResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ckpt.StateOpen {
		return ckpt.QueueResult{}, ckpt.ErrCheckpointClosed
	}

	ns := ckpt.NamespaceOf(item.Operation)

	if c.typ == ckpt.TypeDisk {
		// Disk checkpoints may legitimately carry a prepare and its commit
		// for the same user key; no dedup, no conflict check.
		return c.appendNewLocked(item, ns), nil
	}

	if _, exists := c.preparedIndex[string(item.Key)]; exists && !item.Operation.CompletesPrepare() {
		// A pending prepare blocks any further conflicting write for the
		// same key within this checkpoint (another mutation, or a second
		// prepare): the caller must roll to a new checkpoint. The Commit or
		// Abort that completes this very prepare is not a conflict — it
		// lands below, in the committed or prepared namespace respectively.
		return ckpt.QueueResult{Status: ckpt.FailureDuplicateItem}, nil
	}

	idx := c.indexFor(ns)
	var res ckpt.QueueResult
	if existingEl, exists := idx[string(item.Key)]; exists {
		res = c.replaceLocked(item, ns, existingEl, persistenceCursorHere)
	} else {
		res = c.appendNewLocked(item, ns)
	}

	// A Memory checkpoint's snapshot end follows its newest mutation; a Disk
	// checkpoint keeps the range it was created with.
	if item.BySeqno > c.snapEndSeqno {
		c.snapEndSeqno = item.BySeqno
	}
	if item.Operation != ckpt.OpPrepare && item.BySeqno > c.visibleSnapEndSeqno {
		c.visibleSnapEndSeqno = item.BySeqno
	}
	return res, nil
}

func (c *Checkpoint) appendNewLocked(item *ckpt.QueuedItem, ns ckpt.Namespace) ckpt.QueueResult {
	e := &entry{order: c.nextOrder, item: item}
	c.nextOrder++
	el := c.items.PushBack(e)

	if !item.IsMeta() {
		c.indexFor(ns)[string(item.Key)] = el
		c.keyIndexBytes.Add(int64(len(item.Key)) + keyIndexEntryOverhead)
	}
	c.queuedItemsBytes.Add(int64(item.Size()))
	c.queueOverheadBytes.Add(queueEntryOverhead)

	if item.BySeqno > c.highSeqno {
		c.highSeqno = item.BySeqno
	}
	return ckpt.QueueResult{Status: ckpt.SuccessNewItem}
}

func (c *Checkpoint) replaceLocked(item *ckpt.QueuedItem, ns ckpt.Namespace, existingEl *list.Element, persistenceCursorHere *list.Element) ckpt.QueueResult {
	existing := existingEl.Value.(*entry)
	oldSize := int64(existing.item.Size())

	alreadyPersisted := persistenceCursorHere != nil &&
		existingEl.Value.(*entry).order <= persistenceCursorHere.Value.(*entry).order

	if !alreadyPersisted {
		// Not yet consumed by the persistence cursor: replace in place,
		// same slot, same index entry.
		existing.item = item
		newSize := int64(item.Size())
		diff := newSize - oldSize
		c.queuedItemsBytes.Add(diff)
		if item.BySeqno > c.highSeqno {
			c.highSeqno = item.BySeqno
		}
		return ckpt.QueueResult{Status: ckpt.SuccessExistingItem, SuccessExistingByteDiff: diff}
	}

	// Already flushed: tombstone the old slot (any cursor still sitting on
	// it keeps a stable, if stale, position) and move the live copy to the
	// tail.
	existing.invalidated = true
	c.queuedItemsBytes.Add(-oldSize)

	newEl := c.items.PushBack(&entry{order: c.nextOrder, item: item})
	c.nextOrder++
	c.indexFor(ns)[string(item.Key)] = newEl
	c.queuedItemsBytes.Add(int64(item.Size()))
	c.queueOverheadBytes.Add(queueEntryOverhead)
	if item.BySeqno > c.highSeqno {
		c.highSeqno = item.BySeqno
	}
	return ckpt.QueueResult{Status: ckpt.SuccessPersistAgain}
}

// Close transitions Open to Closed, appending checkpoint_end with seqno
// high_seqno + 1 (a display/bookkeeping convention; see SPEC_FULL.md's
// resolution of the checkpoint_end boundary open question).
func (c *Checkpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ckpt.StateOpen {
		return errors.Errorf("checkpoint %d: close called in state %s", c.id, c.state)
	}
	c.pushMeta(&ckpt.QueuedItem{Operation: ckpt.OpCheckpointEnd, BySeqno: c.highSeqno + 1})
	c.state = ckpt.StateClosed
	return nil
}

// markDetached transitions Closed to Detached; called only by the
// CheckpointManager when splicing into the CheckpointDestroyer.
func (c *Checkpoint) markDetached() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ckpt.StateDetached
}

// IterBegin returns the checkpoint's first element (the empty sentinel).
func (c *Checkpoint) IterBegin() *list.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Front()
}

// IterEnd returns the sentinel "past the end" value: nil, matching
// container/list's own convention.
func (c *Checkpoint) IterEnd() *list.Element { return nil }

// ItemAt dereferences a list element into its QueuedItem, or nil if the
// slot has been invalidated (superseded) or expelled out from under the
// caller.
func ItemAt(el *list.Element) *ckpt.QueuedItem {
	if el == nil {
		return nil
	}
	e := el.Value.(*entry)
	if e.invalidated {
		return nil
	}
	return e.item
}

func orderOf(el *list.Element) int64 {
	return el.Value.(*entry).order
}

// Expel removes the prefix [checkpoint_start+1 .. uptoEl), i.e. strictly
// before uptoEl: the element at uptoEl itself is always retained so that a
// cursor currently positioned there (the slowest cursor referencing this
// checkpoint) keeps pointing at a live element and never needs
// repositioning. If uptoEl sits on a meta item, the boundary walks
// backwards to the preceding mutation. If fewer than two mutations exist
// between checkpoint_start and uptoEl inclusive, Expel is a no-op and
// returns ErrCannotExpel: there is nothing useful to remove.
func (c *Checkpoint) Expel(uptoEl *list.Element) ([]*ckpt.QueuedItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if uptoEl == nil {
		return nil, ckpt.ErrCannotExpel
	}

	boundary := uptoEl
	for boundary != nil && boundary.Value.(*entry).item.IsMeta() {
		boundary = boundary.Prev()
	}
	if boundary == nil {
		return nil, ckpt.ErrCannotExpel
	}

	start := c.items.Front().Next() // checkpoint_start
	if start == nil {
		return nil, ckpt.ErrCannotExpel
	}

	mutations := 0
	for el := start.Next(); el != nil && orderOf(el) <= orderOf(boundary); el = el.Next() {
		if !el.Value.(*entry).item.IsMeta() {
			mutations++
		}
	}
	if mutations < 2 {
		return nil, ckpt.ErrCannotExpel
	}

	var removed []*ckpt.QueuedItem
	var lastRemovedSeqno int64
	el := start.Next()
	for el != nil && orderOf(el) < orderOf(boundary) {
		next := el.Next()
		e := el.Value.(*entry)
		if !e.invalidated {
			removed = append(removed, e.item)
			if e.item.BySeqno > lastRemovedSeqno {
				lastRemovedSeqno = e.item.BySeqno
			}
			ns := ckpt.NamespaceOf(e.item.Operation)
			idx := c.indexFor(ns)
			if idx[string(e.item.Key)] == el {
				delete(idx, string(e.item.Key))
				c.keyIndexBytes.Add(-(int64(len(e.item.Key)) + keyIndexEntryOverhead))
			}
			c.queuedItemsBytes.Add(-int64(e.item.Size()))
			c.queueOverheadBytes.Add(-queueEntryOverhead)
		}
		c.items.Remove(el)
		el = next
	}

	if lastRemovedSeqno > c.highestExpelledSeqno {
		c.highestExpelledSeqno = lastRemovedSeqno
	}
	return removed, nil
}

// Items materialises the full live (non-invalidated) item slice, in order.
// Used by tests and small diagnostics; the hot path should walk via
// CheckpointCursor instead.
func (c *Checkpoint) Items() []*ckpt.QueuedItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ckpt.QueuedItem, 0, c.items.Len())
	for el := c.items.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !e.invalidated {
			out = append(out, e.item)
		}
	}
	return out
}
