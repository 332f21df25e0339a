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

// Package checkpoint holds the plain domain types shared by the checkpoint
// and warmup subsystems: no I/O, no locking, just the vocabulary both sides
// of the write-log / recovery boundary agree on.
package checkpoint

import "fmt"

// Operation identifies the kind of event a QueuedItem represents.
type Operation uint8

const (
	OpMutation Operation = iota
	OpDeletion
	OpPrepare
	OpAbort
	OpCommit
	OpSystemEvent
	OpCheckpointStart
	OpCheckpointEnd
	OpSetVBucketState
	OpEmpty
)

func (o Operation) String() string {
	switch o {
	case OpMutation:
		return "mutation"
	case OpDeletion:
		return "deletion"
	case OpPrepare:
		return "prepare"
	case OpAbort:
		return "abort"
	case OpCommit:
		return "commit"
	case OpSystemEvent:
		return "system_event"
	case OpCheckpointStart:
		return "checkpoint_start"
	case OpCheckpointEnd:
		return "checkpoint_end"
	case OpSetVBucketState:
		return "set_vbucket_state"
	case OpEmpty:
		return "empty"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

// IsMeta reports whether the operation is a bookkeeping marker rather than a
// user mutation or system event. Meta items never count toward the "at
// least two mutations remain" expel predicate (see Checkpoint.Expel).
func (o Operation) IsMeta() bool {
	switch o {
	case OpEmpty, OpCheckpointStart, OpCheckpointEnd, OpSetVBucketState:
		return true
	default:
		return false
	}
}

// IsPrepare reports whether the operation belongs to the "prepared" dedup
// namespace instead of the "committed" one. Abort shares this namespace
// with Prepare: both resolve against the same pending key index, exactly
// as the original implementation's checkpoint.h keeps one index per
// namespace rather than per-operation.
func (o Operation) IsPrepare() bool {
	return o == OpPrepare || o == OpAbort
}

// CompletesPrepare reports whether the operation resolves a pending
// prepare for the same key (Commit or Abort) rather than conflicting with
// it. A plain mutation/deletion/system_event, or a second Prepare, does
// conflict and must not be let through while a prepare is outstanding.
func (o Operation) CompletesPrepare() bool {
	return o == OpCommit || o == OpAbort
}

// DurabilityLevel mirrors the subset of SyncWrite durability levels the
// checkpoint layer must be aware of to decide dedup eligibility.
type DurabilityLevel uint8

const (
	DurabilityNone DurabilityLevel = iota
	DurabilityMajority
	DurabilityMajorityAndPersistOnMaster
	DurabilityPersistToMajority
)

// Durability carries the requirements attached to a prepare.
type Durability struct {
	Level   DurabilityLevel
	Timeout uint32 // milliseconds; 0 means "use the bucket default"
}

// QueuedItem is the unit of the per-vBucket write log: a user mutation, a
// system event, or a meta-marker.
type QueuedItem struct {
	Key       []byte // collection-prefixed by an unsigned LEB128 id
	Operation Operation
	BySeqno   int64
	Cas       uint64
	RevSeqno  uint64
	Expiry    uint32
	Flags     uint32
	Datatype  uint8
	Value     []byte // absent for meta-items and deletions post-expel

	Durability *Durability
}

// IsMeta is a convenience forward to Operation.IsMeta.
func (i *QueuedItem) IsMeta() bool {
	return i.Operation.IsMeta()
}

// Size estimates the in-memory footprint of the item: key + value +
// constant per-item overhead. Used by Checkpoint's memory accounting.
func (i *QueuedItem) Size() uint64 {
	const itemOverhead = 56 // struct + slice headers, roughly
	return uint64(len(i.Key)) + uint64(len(i.Value)) + itemOverhead
}

// Namespace identifies which dedup index a QueuedItem belongs to.
type Namespace uint8

const (
	NamespaceCommitted Namespace = iota
	NamespacePrepared
)

// NamespaceOf returns the dedup namespace an item with the given operation
// belongs to.
func NamespaceOf(op Operation) Namespace {
	if op.IsPrepare() {
		return NamespacePrepared
	}
	return NamespaceCommitted
}

// Type distinguishes checkpoints populated by local mutation traffic from
// those replayed verbatim from a replica's disk snapshot.
type Type uint8

const (
	TypeMemory Type = iota
	TypeDisk
)

func (t Type) String() string {
	if t == TypeDisk {
		return "disk"
	}
	return "memory"
}

// State is the Open/Closed/Detached lifecycle of a Checkpoint.
type State uint8

const (
	StateOpen State = iota
	StateClosed
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// QueueStatus is the outcome of appending an item to a checkpoint.
type QueueStatus uint8

const (
	SuccessNewItem QueueStatus = iota
	SuccessExistingItem
	SuccessPersistAgain
	FailureDuplicateItem
)

func (s QueueStatus) String() string {
	switch s {
	case SuccessNewItem:
		return "SuccessNewItem"
	case SuccessExistingItem:
		return "SuccessExistingItem"
	case SuccessPersistAgain:
		return "SuccessPersistAgain"
	case FailureDuplicateItem:
		return "FailureDuplicateItem"
	default:
		return "unknown"
	}
}

// QueueResult is returned by Checkpoint.Append.
type QueueResult struct {
	Status                 QueueStatus
	SuccessExistingByteDiff int64
}

// SnapshotRange is the [start, end] pair attached to a checkpoint and
// forwarded to replicas so they can atomically admit or reject a batch.
type SnapshotRange struct {
	Start        int64
	End          int64
	VisibleEnd   int64
}
