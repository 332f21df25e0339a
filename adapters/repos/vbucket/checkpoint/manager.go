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

	"github.com/sirupsen/logrus"

	ckpt "github.com/weaviate/kvcheckpoint/entities/checkpoint"
)

// PersistenceCursorName is the well-known name of the cursor that drives
// writes to the KVStore; always registered, never dropped by
// MemRecoveryTask (spec.md glossary: "Persistence cursor").
const PersistenceCursorName = "persistence"

// Config carries the policy knobs a CheckpointManager is constructed with.
type Config struct {
	MaxCheckpoints        int
	MaxItemsPerCheckpoint int
	// EagerDisposal and EnableCheckpointMerge are carried but not read by
	// Manager: closed checkpoints leave the list only through
	// RemoveClosedUnreferenced, and closed checkpoints are never merged.
	EagerDisposal         bool
	EnableCheckpointMerge bool

	// MemHighWaterMark bounds this manager's own checkpoint memory; Queue
	// refuses new items with ckpt.ErrOutOfMemory once crossed (spec.md
	// section 7: "OOM on allocation propagates as OutOfMemory and the
	// writer must retry later"). Zero disables the check.
	MemHighWaterMark int64
}

// DefaultConfig returns sane defaults, matching the magnitudes the teacher
// uses for its own memtable flush thresholds (usecases/config style: a
// plain struct, defaults applied by a constructor, no framework).
func DefaultConfig() Config {
	return Config{
		MaxCheckpoints:        int(^uint(0) >> 1), // effectively unbounded unless the caller sets one
		MaxItemsPerCheckpoint: 10000,
		EagerDisposal:         true,
		EnableCheckpointMerge: false,
		MemHighWaterMark:      0,
	}
}

// Disposer is the sink a CheckpointManager splices detached checkpoints
// into; satisfied by *Destroyer.
type Disposer interface {
	Enqueue(checkpoints []*Checkpoint)
}

// Manager owns the ordered list of checkpoints for one vBucket: the
// "unified queue for persistence and replication" (spec.md section 4.3).
// It mediates enqueue, cursor registration, expel, cursor-drop, and
// removal of closed unreferenced checkpoints behind a single mutex (spec section 5,
// shared-resource policy), the way the teacher's lsmkv.Bucket serialises
// memtable/segment-group mutation behind one lock.
type Manager struct {
	mu sync.Mutex
	cv *sync.Cond

	vbid   uint16
	logger logrus.FieldLogger

	cfg Config

	list    *checkpointList
	cursors map[string]*Cursor

	nextCheckpointID int64
	seqno            *SeqnoAllocator

	maxVisibleSeqno int64

	memory ckpt.MemoryTracker

	disposer Disposer
}

// NewManager constructs a Manager with a single Open checkpoint starting
// immediately after startSeqno (typically the vBucket's persisted
// high_seqno from warmup) and registers the persistence cursor at that
// same point.
func NewManager(vbid uint16, startSeqno int64, cfg Config, disposer Disposer, logger logrus.FieldLogger) *Manager {
	m := &Manager{
		vbid:             vbid,
		logger:           logger,
		cfg:              cfg,
		list:             newCheckpointList(),
		cursors:          map[string]*Cursor{},
		nextCheckpointID: 1,
		seqno:            NewSeqnoAllocator(startSeqno),
		maxVisibleSeqno:  startSeqno,
		disposer:         disposer,
	}
	m.cv = sync.NewCond(&m.mu)

	first := New(m.nextCheckpointID, ckpt.TypeMemory, startSeqno+1, startSeqno, &m.memory)
	m.nextCheckpointID++
	m.list.append(first)

	pc := &Cursor{
		name:       PersistenceCursorName,
		checkpointList: m.list,
		checkpoint: first,
		pos:        first.IterBegin(),
	}
	first.IncRefCursor()
	m.cursors[PersistenceCursorName] = pc

	return m
}

// MemoryUsage returns the manager's total accounted checkpoint memory.
func (m *Manager) MemoryUsage() int64 {
	return m.memory.Bytes()
}

// VBucketID returns the owning vBucket's id.
func (m *Manager) VBucketID() uint16 { return m.vbid }

// Queue assigns a bySeqno (unless the item already carries one, as for
// replica replay), appends it to the open checkpoint, and rolls to a new
// Memory checkpoint when required. See spec.md section 4.3. If the open
// checkpoint is currently a Disk checkpoint (mid disk-snapshot backfill,
// see QueueDiskSnapshotItem), this crosses the Memory↔Disk type boundary
// (roll condition (b)) and rolls to Memory before appending: a live
// mutation is never appended into a Disk checkpoint.
func (m *Manager) Queue(item *ckpt.QueuedItem) (ckpt.QueueResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MemHighWaterMark > 0 && m.memory.Bytes() >= m.cfg.MemHighWaterMark {
		return ckpt.QueueResult{}, ckpt.ErrOutOfMemory
	}

	if item.BySeqno == 0 {
		item.BySeqno = m.seqno.Next()
	} else {
		if item.BySeqno <= m.seqno.Last() {
			return ckpt.QueueResult{}, ckpt.ErrSeqnoRegression
		}
		m.seqno.Observe(item.BySeqno)
	}

	if m.openCheckpointLocked().Type() == ckpt.TypeDisk {
		if err := m.rollLocked(ckpt.TypeMemory); err != nil {
			return ckpt.QueueResult{}, err
		}
	}

	res, err := m.queueLocked(item)
	if err == nil {
		if item.Operation != ckpt.OpPrepare {
			m.maxVisibleSeqno = item.BySeqno
		}
		m.cv.Broadcast()
	}
	return res, err
}

// QueueDiskSnapshotItem appends item as part of a verbatim disk snapshot
// backfilled from an active node's replica stream (spec.md section 4.3 roll
// condition (b): a checkpoint type boundary is crossed). It rolls to a new
// Disk checkpoint spanning snap whenever the open checkpoint is not already
// that same in-progress Disk snapshot, then appends without dedup (disk
// checkpoints may legitimately carry a prepare and its commit for the same
// key, spec section 4.1). A disk snapshot is always delivered and stored as
// a single checkpoint (section 4.3): callers must supply every item of one
// snapshot before starting the next.
func (m *Manager) QueueDiskSnapshotItem(item *ckpt.QueuedItem, snap ckpt.SnapshotRange) (ckpt.QueueResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := m.openCheckpointLocked()
	r := open.SnapshotRange()
	if open.Type() != ckpt.TypeDisk || r.Start != snap.Start || r.End != snap.End {
		if err := m.rollToLocked(ckpt.TypeDisk, snap.Start, snap.End); err != nil {
			return ckpt.QueueResult{}, err
		}
		open = m.openCheckpointLocked()
	}

	if item.BySeqno > m.seqno.Last() {
		m.seqno.Observe(item.BySeqno)
	}

	res, err := open.Append(item, m.persistenceCursorPosIn(open))
	if err == nil {
		if item.BySeqno > m.maxVisibleSeqno && item.Operation != ckpt.OpPrepare {
			m.maxVisibleSeqno = item.BySeqno
		}
		m.cv.Broadcast()
	}
	return res, err
}

func (m *Manager) openCheckpointLocked() *Checkpoint {
	return m.list.at(m.list.len() - 1)
}

func (m *Manager) persistenceCursorPosIn(c *Checkpoint) *list.Element {
	pc, ok := m.cursors[PersistenceCursorName]
	if !ok || pc.checkpointAt() != c {
		return nil
	}
	return pc.posSnapshot()
}

func (m *Manager) queueLocked(item *ckpt.QueuedItem) (ckpt.QueueResult, error) {
	open := m.openCheckpointLocked()

	res, err := open.Append(item, m.persistenceCursorPosIn(open))
	if err != nil {
		return res, err
	}

	if res.Status == ckpt.FailureDuplicateItem {
		if err := m.rollLocked(ckpt.TypeMemory); err != nil {
			return res, err
		}
		open = m.openCheckpointLocked()
		res, err = open.Append(item, nil)
		if err != nil {
			return res, err
		}
	}

	if open.NumItems()-2 >= m.cfg.MaxItemsPerCheckpoint {
		_ = m.rollLocked(ckpt.TypeMemory)
	}
	return res, nil
}

// rollLocked closes the current open checkpoint and opens a new one of the
// given type, continuing immediately after the closed checkpoint's high
// seqno.
func (m *Manager) rollLocked(typ ckpt.Type) error {
	open := m.openCheckpointLocked()
	return m.rollToLocked(typ, open.HighSeqno()+1, open.HighSeqno())
}

// rollToLocked closes the current open checkpoint and opens a new one of
// the given type with an explicit snapshot range, used by
// QueueDiskSnapshotItem to preserve the exact [start, end] boundary a
// replicated disk snapshot arrived with rather than deriving it from local
// seqno bookkeeping.
func (m *Manager) rollToLocked(typ ckpt.Type, snapStart, snapEnd int64) error {
	open := m.openCheckpointLocked()
	if err := open.Close(); err != nil {
		return err
	}
	next := New(m.nextCheckpointID, typ, snapStart, snapEnd, &m.memory)
	m.nextCheckpointID++
	m.list.append(next)
	return nil
}

// ForceNewCheckpoint closes the open checkpoint immediately and opens a new
// one, used for explicit boundary requests (set_vbucket_state, collection
// events).
func (m *Manager) ForceNewCheckpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollLocked(ckpt.TypeMemory)
}

// GetHighSeqno returns the highest seqno assigned in this vBucket so far.
func (m *Manager) GetHighSeqno() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seqno.Last()
}

// GetMaxVisibleSeqno returns the highest seqno visible to clients (i.e.
// excluding as-yet-uncommitted prepares).
func (m *Manager) GetMaxVisibleSeqno() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxVisibleSeqno
}

// GetOpenCheckpointID returns the id of the current Open checkpoint.
func (m *Manager) GetOpenCheckpointID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCheckpointLocked().ID()
}

// GetSnapshotInfo returns the open checkpoint's snapshot range.
func (m *Manager) GetSnapshotInfo() ckpt.SnapshotRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCheckpointLocked().SnapshotRange()
}

// GetNumCheckpoints is a diagnostic accessor mirrored from the original
// implementation's CheckpointManager::getNumCheckpoints.
func (m *Manager) GetNumCheckpoints() int {
	return m.list.len()
}

// GetNumOpenChkItems is a diagnostic accessor reporting the open
// checkpoint's element count, meta items included.
func (m *Manager) GetNumOpenChkItems() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCheckpointLocked().NumItems()
}

// getMinimumCursorSeqnoLocked returns the lowest seqno any newly registered
// cursor could still obtain: the first surviving (non-expelled, non-meta)
// mutation across the whole list, starting from the oldest checkpoint.
func (m *Manager) getMinimumCursorSeqnoLocked() int64 {
	for _, c := range m.list.all() {
		for el := c.IterBegin(); el != nil; el = el.Next() {
			it := ItemAt(el)
			if it == nil || it.IsMeta() {
				continue
			}
			return it.BySeqno
		}
	}
	return m.seqno.Last() + 1
}

// GetMinimumCursorSeqno exposes getMinimumCursorSeqnoLocked for callers
// validating a prospective cursor registration ahead of time (P4).
func (m *Manager) GetMinimumCursorSeqno() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getMinimumCursorSeqnoLocked()
}

// RegisterCursor registers a new CheckpointCursor positioned just before
// the first item with seqno >= startSeqno. Fails with ErrOutOfRange if
// startSeqno is older than the oldest retained mutation (spec section 4.2).
func (m *Manager) RegisterCursor(name string, startSeqno int64, mustSendEnd bool) (*Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cursors[name]; exists {
		return nil, ErrCursorAlreadyRegistered(name)
	}

	if startSeqno < m.getMinimumCursorSeqnoLocked() {
		return nil, ckpt.ErrOutOfRange
	}

	for _, c := range m.list.all() {
		pos := c.IterBegin() // the empty sentinel
		for {
			next := pos.Next()
			if next == nil {
				break
			}
			it := ItemAt(next)
			if it != nil && !it.IsMeta() && it.BySeqno >= startSeqno {
				cur := &Cursor{
					name:           name,
					checkpointList: m.list,
					checkpoint:     c,
					pos:            pos,
					mustSendEnd:    mustSendEnd,
				}
				c.IncRefCursor()
				m.cursors[name] = cur
				return cur, nil
			}
			pos = next
		}
	}

	// startSeqno is beyond every known item: position at the very tail of
	// the open checkpoint, ready to pick up the next queued item.
	open := m.openCheckpointLocked()
	tail := open.IterBegin()
	for n := tail.Next(); n != nil; n = tail.Next() {
		tail = n
	}
	cur := &Cursor{
		name:           name,
		checkpointList: m.list,
		checkpoint:     open,
		pos:            tail,
		mustSendEnd:    mustSendEnd,
	}
	open.IncRefCursor()
	m.cursors[name] = cur
	return cur, nil
}

// RemoveCursor de-registers a cursor, decrementing the ref count on the
// checkpoint it currently sits in.
func (m *Manager) RemoveCursor(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.cursors[name]
	if !ok {
		return ckpt.ErrCursorNotFound
	}
	cur.checkpointAt().DecRefCursor()
	delete(m.cursors, name)
	return nil
}

// DropCursor marks a cursor Dropped in place, used by MemRecoveryTask
// (spec section 4.4, Phase C): the owning DCP stream observes the drop and
// re-backfills; the persistence cursor is never a valid target.
func (m *Manager) DropCursor(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == PersistenceCursorName {
		return ErrCannotDropPersistenceCursor
	}
	cur, ok := m.cursors[name]
	if !ok {
		return ckpt.ErrCursorNotFound
	}
	cur.mu.Lock()
	cur.dropState = CursorDropped
	cur.mu.Unlock()
	cur.checkpointAt().DecRefCursor()
	delete(m.cursors, name)
	return nil
}

// GetItemsForCursor returns a contiguous range of items that does not
// cross a snapshot boundary: a Disk checkpoint is always delivered as a
// single snapshot (spec section 4.3).
func (m *Manager) GetItemsForCursor(name string, maxItems, maxBytes int) ([]*ckpt.QueuedItem, ckpt.SnapshotRange, bool, error) {
	m.mu.Lock()
	cur, ok := m.cursors[name]
	m.mu.Unlock()
	if !ok {
		return nil, ckpt.SnapshotRange{}, false, ckpt.ErrCursorNotFound
	}

	startCkpt := cur.checkpointAt()
	snap := startCkpt.SnapshotRange()

	var items []*ckpt.QueuedItem
	var bytesSoFar int
	isLastMutation := false

	for {
		before := cur.checkpointAt()
		if before != startCkpt {
			break // crossed into a new snapshot; stop before mixing ranges
		}

		it, isLast, ok := cur.Advance()
		if !ok {
			break
		}
		if it.IsMeta() {
			continue
		}
		items = append(items, it)
		bytesSoFar += int(it.Size())
		isLastMutation = isLast

		if before.Type() == ckpt.TypeDisk {
			// disk snapshots are never split
			if isLast {
				break
			}
			continue
		}
		if len(items) >= maxItems || bytesSoFar >= maxBytes {
			break
		}
	}

	return items, snap, isLastMutation, nil
}

// RemoveClosedUnreferenced splices every Closed, cursor-unreferenced
// checkpoint (excluding the Open tail) into the Disposer, returning the
// number removed.
func (m *Manager) RemoveClosedUnreferenced() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.list.all()
	var idxs []int
	var victims []*Checkpoint
	for i, c := range all {
		if i == len(all)-1 {
			break // never remove the Open tail
		}
		if c.State() == ckpt.StateClosed && c.NumCursors() == 0 {
			idxs = append(idxs, i)
			victims = append(victims, c)
		}
	}
	if len(victims) == 0 {
		return 0, nil
	}

	m.list.removeIndexes(idxs)
	for _, c := range victims {
		c.markDetached()
		c.queuedItemsBytes.SetParent(nil)
		c.keyIndexBytes.SetParent(nil)
		c.queueOverheadBytes.SetParent(nil)
	}
	if m.disposer != nil {
		m.disposer.Enqueue(victims)
	}
	return len(victims), nil
}

// ExpelItems picks the oldest checkpoint that still has at least one
// cursor and expels the consumed prefix up to the slowest cursor's
// position, returning the bytes freed.
func (m *Manager) ExpelItems() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.list.all() {
		if c.NumCursors() == 0 {
			continue
		}
		slowest := m.slowestCursorPosInLocked(c)
		if slowest == nil {
			continue
		}
		before := c.MemoryUsage()
		if _, err := c.Expel(slowest); err != nil {
			if err == ckpt.ErrCannotExpel {
				continue
			}
			return 0, err
		}
		return before - c.MemoryUsage(), nil
	}
	return 0, nil
}

func (m *Manager) slowestCursorPosInLocked(c *Checkpoint) *list.Element {
	var slowest *Cursor
	for _, cur := range m.cursors {
		if cur.checkpointAt() != c {
			continue
		}
		if slowest == nil || cur.LastReturnedSeqno() < slowest.LastReturnedSeqno() {
			slowest = cur
		}
	}
	if slowest == nil {
		return nil
	}
	return slowest.posSnapshot()
}

// SlowestNonPersistenceCursor returns the name of the cursor (excluding
// persistence) with the lowest LastReturnedSeqno, used by MemRecoveryTask
// Phase C. Returns ("", false) if there is no droppable cursor.
func (m *Manager) SlowestNonPersistenceCursor() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var slowestName string
	var slowestSeqno int64 = -1
	found := false
	for name, cur := range m.cursors {
		if name == PersistenceCursorName {
			continue
		}
		if cur.State() == CursorDropped {
			continue
		}
		seqno := cur.LastReturnedSeqno()
		if !found || seqno < slowestSeqno {
			slowestName = name
			slowestSeqno = seqno
			found = true
		}
	}
	return slowestName, found
}
