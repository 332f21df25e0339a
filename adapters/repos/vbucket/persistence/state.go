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

// Package persistence holds the boundary between a persisted vBucket state
// record and the in-memory checkpoint subsystem: PersistedVBucketState's
// version-aware serialisation and the KVStore capability interface warmup
// and flush consume. It mirrors the teacher's split between
// adapters/repos/db/lsmkv (storage engine internals) and adapters/clients
// (the external service boundary) — this package is the boundary, not the
// engine.
package persistence

import "encoding/json"

// VBucketState is the lifecycle label of a vBucket as recorded on disk.
type VBucketState string

const (
	StateActive   VBucketState = "active"
	StateReplica  VBucketState = "replica"
	StatePending  VBucketState = "pending"
	StateDead     VBucketState = "dead"
)

// FailoverEntry is one append to a vBucket's failover table: a UUID
// identifying the branch, and the seqno at which it was created.
type FailoverEntry struct {
	UUID   string `json:"uuid"`
	Seqno  int64  `json:"seqno"`
}

// Transition carries the subset of vBucket state that changes across a
// failover or topology change.
type Transition struct {
	State               VBucketState     `json:"state"`
	Failovers           []FailoverEntry  `json:"failovers"`
	ReplicationTopology []string         `json:"replication_topology"`
}

// PersistedVBucketState is the versioned, JSON-compatible record stored per
// vBucket file; warmup reads it to rebuild the in-memory CheckpointManager
// and other runtime state (spec.md section 3).
type PersistedVBucketState struct {
	VBucketID uint16 `json:"vbucket_id"`

	Version int `json:"version"`

	State VBucketState `json:"state"`

	HighSeqno        int64  `json:"high_seqno"`
	PurgeSeqno       int64  `json:"purge_seqno"`
	MaxCas           uint64 `json:"max_cas"`
	HLCCasEpochSeqno int64  `json:"hlc_cas_epoch_seqno"`

	LastSnapStart   int64 `json:"last_snap_start"`
	LastSnapEnd     int64 `json:"last_snap_end"`
	MaxVisibleSeqno int64 `json:"max_visible_seqno"`

	PersistedCompletedSeqno int64 `json:"persisted_completed_seqno"`
	PersistedPreparedSeqno  int64 `json:"persisted_prepared_seqno"`
	OnDiskPrepares          int64 `json:"on_disk_prepares"`

	MightContainXattrs  bool `json:"might_contain_xattrs"`
	SupportsNamespaces  bool `json:"supports_namespaces"`
	supportsNamespacesSet bool

	Transition Transition `json:"transition"`
}

// defaultingState is the wire shape used only to detect which optional
// fields were present in the source JSON, so omitted fields can be
// defaulted per spec.md section 6 rather than silently zero-valued.
type defaultingState struct {
	VBucketID uint16 `json:"vbucket_id"`

	Version int `json:"version"`

	State VBucketState `json:"state"`

	HighSeqno        int64  `json:"high_seqno"`
	PurgeSeqno       int64  `json:"purge_seqno"`
	MaxCas           uint64 `json:"max_cas"`
	HLCCasEpochSeqno int64  `json:"hlc_cas_epoch_seqno"`

	LastSnapStart   int64 `json:"last_snap_start"`
	LastSnapEnd     int64 `json:"last_snap_end"`
	MaxVisibleSeqno int64 `json:"max_visible_seqno"`

	PersistedCompletedSeqno *int64 `json:"persisted_completed_seqno"`
	PersistedPreparedSeqno  *int64 `json:"persisted_prepared_seqno"`
	OnDiskPrepares          *int64 `json:"on_disk_prepares"`

	MightContainXattrs bool  `json:"might_contain_xattrs"`
	SupportsNamespaces *bool `json:"supports_namespaces"`

	Transition *struct {
		State               VBucketState    `json:"state"`
		Failovers           []FailoverEntry `json:"failovers"`
		ReplicationTopology []string        `json:"replication_topology"`
	} `json:"transition"`
}

// UnmarshalJSON implements version-aware defaulting (spec.md section 6):
// older records omitting `persisted_completed_seqno`, `persisted_prepared_seqno`,
// `on_disk_prepares`, or `transition.replication_topology` get 0/empty
// defaults; `supports_namespaces` defaults true when the field is absent.
func (s *PersistedVBucketState) UnmarshalJSON(data []byte) error {
	var raw defaultingState
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.VBucketID = raw.VBucketID
	s.Version = raw.Version
	s.State = raw.State
	s.HighSeqno = raw.HighSeqno
	s.PurgeSeqno = raw.PurgeSeqno
	s.MaxCas = raw.MaxCas
	s.HLCCasEpochSeqno = raw.HLCCasEpochSeqno
	s.LastSnapStart = raw.LastSnapStart
	s.LastSnapEnd = raw.LastSnapEnd
	s.MaxVisibleSeqno = raw.MaxVisibleSeqno
	s.MightContainXattrs = raw.MightContainXattrs

	if raw.PersistedCompletedSeqno != nil {
		s.PersistedCompletedSeqno = *raw.PersistedCompletedSeqno
	}
	if raw.PersistedPreparedSeqno != nil {
		s.PersistedPreparedSeqno = *raw.PersistedPreparedSeqno
	}
	if raw.OnDiskPrepares != nil {
		s.OnDiskPrepares = *raw.OnDiskPrepares
	}

	if raw.SupportsNamespaces != nil {
		s.SupportsNamespaces = *raw.SupportsNamespaces
		s.supportsNamespacesSet = true
	} else {
		s.SupportsNamespaces = true
	}

	if raw.Transition != nil {
		s.Transition.State = raw.Transition.State
		s.Transition.Failovers = raw.Transition.Failovers
		s.Transition.ReplicationTopology = raw.Transition.ReplicationTopology
	}
	if s.Transition.ReplicationTopology == nil {
		s.Transition.ReplicationTopology = []string{}
	}

	return nil
}

// MarshalJSON writes the record in its canonical (always-populated) shape.
func (s PersistedVBucketState) MarshalJSON() ([]byte, error) {
	type alias PersistedVBucketState
	return json.Marshal(alias(s))
}

// RequiresWarmupAbort reports whether this record was explicitly
// marked supports_namespaces=false, which aborts the whole warmup with a
// critical log per spec.md section 6.
func (s *PersistedVBucketState) RequiresWarmupAbort() bool {
	return s.supportsNamespacesSet && !s.SupportsNamespaces
}
