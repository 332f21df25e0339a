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
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ckpt "github.com/weaviate/kvcheckpoint/entities/checkpoint"
)

func silentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(nil)
	l.SetLevel(logrus.PanicLevel)
	return l
}

func mutation(key string) *ckpt.QueuedItem {
	return &ckpt.QueuedItem{Key: []byte(key), Operation: ckpt.OpMutation, Value: []byte("v")}
}

func deletion(key string) *ckpt.QueuedItem {
	return &ckpt.QueuedItem{Key: []byte(key), Operation: ckpt.OpDeletion}
}

// TestManager_S1_EnqueueThenExpel exercises the scenario of spec.md section
// 7 (S1): three distinct mutations queued, persistence drains everything,
// then expel removes the consumed prefix but always keeps the slowest
// cursor's current item live so the cursor never needs repositioning.
func TestManager_S1_EnqueueThenExpel(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())

	_, err := m.Queue(mutation("k1"))
	require.NoError(t, err)
	_, err = m.Queue(mutation("k2"))
	require.NoError(t, err)
	_, err = m.Queue(mutation("k3"))
	require.NoError(t, err)

	require.Equal(t, int64(3), m.GetHighSeqno())

	// Drain the persistence cursor to the tail.
	for {
		items, _, _, err := m.GetItemsForCursor(PersistenceCursorName, 100, 1<<20)
		require.NoError(t, err)
		if len(items) == 0 {
			break
		}
	}
	require.Equal(t, int64(3), m.cursors[PersistenceCursorName].LastReturnedSeqno())

	before := m.openCheckpointLocked().MemoryUsage()
	freed, err := m.ExpelItems()
	require.NoError(t, err)
	assert.Greater(t, freed, int64(0))

	open := m.openCheckpointLocked()
	assert.Less(t, open.MemoryUsage(), before)
	assert.Equal(t, int64(2), open.HighestExpelledSeqno())

	items := open.Items()
	var sawSeqno3 bool
	for _, it := range items {
		if it.IsMeta() {
			// empty and checkpoint_start carry the snapshot start seqno (1).
			continue
		}
		if it.BySeqno == 3 {
			sawSeqno3 = true
		}
		assert.NotEqual(t, int64(1), it.BySeqno, "seqno 1 must have been expelled")
	}
	assert.True(t, sawSeqno3, "the cursor's current item must remain live after expel")
}

// TestManager_DedupReplacedItemKeepsQueuePosition documents a property of
// the replace-in-place dedup path: a key rewritten before the persistence
// cursor consumes it keeps its original queue slot, so its by_seqno can
// trail a still-unconsumed neighbour queued after it but before the
// rewrite. Consumers rely on checkpoint snapshot boundaries, not strict
// per-item seqno order, when this happens.
func TestManager_DedupReplacedItemKeepsQueuePosition(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())

	_, err := m.Queue(mutation("k1")) // seqno 1, slot A
	require.NoError(t, err)
	_, err = m.Queue(mutation("k2")) // seqno 2, slot B
	require.NoError(t, err)
	res, err := m.Queue(deletion("k1")) // seqno 3, replaces slot A in place
	require.NoError(t, err)
	assert.Equal(t, ckpt.SuccessExistingItem, res.Status)

	items := m.openCheckpointLocked().Items()
	require.Len(t, items, 4) // empty, checkpoint_start, k1, k2
	assert.Equal(t, "k1", string(items[2].Key))
	assert.Equal(t, int64(3), items[2].BySeqno)
	assert.Equal(t, "k2", string(items[3].Key))
	assert.Equal(t, int64(2), items[3].BySeqno)
}

// TestManager_S2_DedupInOpenCheckpoint checks that re-queuing the same key
// before it has been consumed by the persistence cursor replaces the
// existing slot instead of growing the checkpoint.
func TestManager_S2_DedupInOpenCheckpoint(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())

	_, err := m.Queue(mutation("k1"))
	require.NoError(t, err)
	before := m.openCheckpointLocked().NumItems()

	res, err := m.Queue(mutation("k1"))
	require.NoError(t, err)
	assert.Equal(t, ckpt.SuccessExistingItem, res.Status)
	assert.Equal(t, before, m.openCheckpointLocked().NumItems())
}

// TestManager_S2b_DedupAfterPersistenceMovesToTail checks that re-queuing a
// key already consumed by the persistence cursor produces SuccessPersistAgain
// and the item is appended at the tail rather than replaced in place.
func TestManager_S2b_DedupAfterPersistenceMovesToTail(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())

	_, err := m.Queue(mutation("k1"))
	require.NoError(t, err)

	items, _, _, err := m.GetItemsForCursor(PersistenceCursorName, 100, 1<<20)
	require.NoError(t, err)
	require.Len(t, items, 1)

	before := m.openCheckpointLocked().NumItems()
	res, err := m.Queue(mutation("k1"))
	require.NoError(t, err)
	assert.Equal(t, ckpt.SuccessPersistAgain, res.Status)
	assert.Greater(t, m.openCheckpointLocked().NumItems(), before)
}

// TestManager_S3_RegisterCursorOutOfRange checks that registering a cursor
// below the oldest retained mutation fails with ErrOutOfRange (P4).
func TestManager_S3_RegisterCursorOutOfRange(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())

	for i := 0; i < 3; i++ {
		_, err := m.Queue(mutation(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}

	// Drain and expel so seqno 1 is no longer retained.
	_, _, _, err := m.GetItemsForCursor(PersistenceCursorName, 100, 1<<20)
	require.NoError(t, err)
	_, err = m.ExpelItems()
	require.NoError(t, err)

	_, err = m.RegisterCursor("dcp-1", 1, true)
	assert.ErrorIs(t, err, ckpt.ErrOutOfRange)
}

// TestManager_RegisterCursor_ValidSeqnoSucceeds is the positive half of P4.
func TestManager_RegisterCursor_ValidSeqnoSucceeds(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())
	for i := 0; i < 3; i++ {
		_, err := m.Queue(mutation(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}
	min := m.GetMinimumCursorSeqno()
	_, err := m.RegisterCursor("dcp-1", min, true)
	require.NoError(t, err)
}

// TestManager_S6_MemRecoveryFallsBackThroughPhases exercises MemRecoveryTask
// end to end: removal frees nothing (everything is still cursor-referenced
// by the lagging replica stream), expel frees nothing either (the lagging
// cursor still sits on checkpoint_start), and since memory is still over
// budget the lagging cursor itself gets dropped.
func TestManager_S6_MemRecoveryFallsBackThroughPhases(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())

	for i := 0; i < 50; i++ {
		_, err := m.Queue(mutation(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}

	laggingCursor, err := m.RegisterCursor("lagging-replica", 1, true)
	require.NoError(t, err)

	// Persistence races ahead; the replica cursor never advances.
	_, _, _, err = m.GetItemsForCursor(PersistenceCursorName, 1000, 1<<20)
	require.NoError(t, err)

	usedBefore := m.MemoryUsage()
	threshold := usedBefore // force the task to treat us as over budget once
	memUsed := func() int64 { return m.MemoryUsage() }
	lowWat := func() int64 { return threshold / 2 }

	task := NewMemRecoveryTask(memUsed, lowWat, silentLogger())
	task.Register(m)

	noBreak := func() bool { return false }
	task.Run(noBreak)

	assert.Equal(t, CursorDropped, laggingCursor.State())
	_, stillRegistered := m.cursors["lagging-replica"]
	assert.False(t, stillRegistered, "DropCursor must de-register the name so it can be re-registered")
}

// TestManager_RemoveClosedUnreferenced_SendsToDisposer checks the Disposer
// wiring: a Destroyer registered with the Manager receives detached
// checkpoints via Enqueue.
func TestManager_RemoveClosedUnreferenced_SendsToDisposer(t *testing.T) {
	d := NewDestroyer(silentLogger(), 0)
	m := NewManager(0, 0, DefaultConfig(), d, silentLogger())

	_, err := m.Queue(mutation("k1"))
	require.NoError(t, err)
	require.NoError(t, m.ForceNewCheckpoint())

	_, _, _, err = m.GetItemsForCursor(PersistenceCursorName, 1000, 1<<20)
	require.NoError(t, err)

	n, err := m.RemoveClosedUnreferenced()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, d.PendingCount())

	freed := d.DrainOnce()
	assert.Equal(t, 1, freed)
	assert.Equal(t, 0, d.PendingCount())
}

// TestManager_P1_CommittedAndPreparedNamespacesIndependent checks that a
// pending prepare for a key does not dedup against a committed mutation of
// the same key, and vice versa (P1).
func TestManager_P1_CommittedAndPreparedNamespacesIndependent(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())

	_, err := m.Queue(mutation("k1"))
	require.NoError(t, err)

	prepare := &ckpt.QueuedItem{Key: []byte("k1"), Operation: ckpt.OpPrepare, Value: []byte("v2")}
	res, err := m.Queue(prepare)
	require.NoError(t, err)
	assert.Equal(t, ckpt.SuccessNewItem, res.Status)
}

// TestManager_P5_NoGapInCheckpointIDs checks that checkpoint ids issued by
// repeated ForceNewCheckpoint calls are strictly consecutive.
func TestManager_P5_NoGapInCheckpointIDs(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())

	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, m.GetOpenCheckpointID())
		require.NoError(t, m.ForceNewCheckpoint())
	}
	ids = append(ids, m.GetOpenCheckpointID())

	for i := 1; i < len(ids); i++ {
		assert.Equal(t, ids[i-1]+1, ids[i])
	}
}

// TestManager_CursorMonotonicity checks property P2: a cursor's
// LastReturnedSeqno never decreases across Advance calls.
func TestManager_CursorMonotonicity(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())
	for i := 0; i < 10; i++ {
		_, err := m.Queue(mutation(string(rune('a' + i))))
		require.NoError(t, err)
	}

	_, err := m.RegisterCursor("dcp-1", 1, true)
	require.NoError(t, err)

	var last int64
	for {
		items, _, _, err := m.GetItemsForCursor("dcp-1", 1, 1<<20)
		require.NoError(t, err)
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			assert.GreaterOrEqual(t, it.BySeqno, last)
			last = it.BySeqno
		}
	}
}

// TestManager_Queue_OutOfMemoryAboveWaterMark exercises spec.md section 7:
// Queue refuses new items with ErrOutOfMemory once accounted memory
// reaches the configured watermark, and the item is never admitted into
// the open checkpoint.
func TestManager_Queue_OutOfMemoryAboveWaterMark(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemHighWaterMark = 1 // any accounted byte trips it
	m := NewManager(0, 0, cfg, nil, silentLogger())

	_, err := m.Queue(mutation("k1"))
	require.NoError(t, err)

	_, err = m.Queue(mutation("k2"))
	require.ErrorIs(t, err, ckpt.ErrOutOfMemory)
	require.Equal(t, int64(1), m.GetHighSeqno(), "rejected item must not advance the seqno allocator")
}

// TestManager_Queue_ZeroWaterMarkDisablesCheck confirms the default
// (MemHighWaterMark == 0) never rejects writes on memory grounds.
func TestManager_Queue_ZeroWaterMarkDisablesCheck(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())
	for i := 0; i < 50; i++ {
		_, err := m.Queue(mutation(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}
}

// TestManager_QueueDiskSnapshotItem_OpensDiskCheckpoint exercises roll
// condition (b) from spec.md section 4.3 on the Memory->Disk side: a disk
// snapshot backfill rolls off the initial open Memory checkpoint into a new
// Disk checkpoint spanning the given range, and every item of that snapshot
// lands in the same checkpoint without dedup (prepare and commit for one
// key may coexist, spec section 4.1).
func TestManager_QueueDiskSnapshotItem_OpensDiskCheckpoint(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())
	snap := ckpt.SnapshotRange{Start: 1, End: 2}

	prepare := &ckpt.QueuedItem{Key: []byte("k"), Operation: ckpt.OpPrepare, BySeqno: 1}
	_, err := m.QueueDiskSnapshotItem(prepare, snap)
	require.NoError(t, err)

	commit := &ckpt.QueuedItem{Key: []byte("k"), Operation: ckpt.OpCommit, BySeqno: 2}
	res, err := m.QueueDiskSnapshotItem(commit, snap)
	require.NoError(t, err)
	assert.Equal(t, ckpt.SuccessNewItem, res.Status)

	require.Equal(t, 2, m.GetNumCheckpoints(), "the initial Memory checkpoint and one Disk checkpoint")
	assert.Equal(t, ckpt.SnapshotRange{Start: 1, End: 2, VisibleEnd: 2}, m.GetSnapshotInfo())
}

// TestManager_Queue_CrossesBackFromDiskToMemory exercises roll condition
// (b) on the Disk->Memory side: once a live mutation is queued after a
// disk-snapshot backfill left a Disk checkpoint open, Queue must not append
// into it and instead rolls to a fresh Memory checkpoint first.
func TestManager_Queue_CrossesBackFromDiskToMemory(t *testing.T) {
	m := NewManager(0, 0, DefaultConfig(), nil, silentLogger())
	snap := ckpt.SnapshotRange{Start: 1, End: 1}

	_, err := m.QueueDiskSnapshotItem(&ckpt.QueuedItem{Key: []byte("k1"), Operation: ckpt.OpMutation, BySeqno: 1}, snap)
	require.NoError(t, err)
	require.Equal(t, 2, m.GetNumCheckpoints())

	_, err = m.Queue(mutation("k2"))
	require.NoError(t, err)

	require.Equal(t, 3, m.GetNumCheckpoints(), "queueing a live mutation must roll off the Disk checkpoint")
}
