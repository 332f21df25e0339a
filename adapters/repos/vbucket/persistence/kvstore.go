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

package persistence

import "context"

// CollectionStatsStatus is the outcome of a GetCollectionStats call.
type CollectionStatsStatus uint8

const (
	CollectionStatsOK CollectionStatsStatus = iota
	CollectionStatsNotFound
	CollectionStatsFailed
)

// CollectionStats reports the per-collection accounting a KVStore tracks.
type CollectionStats struct {
	ItemCount int64
	HighSeqno int64
	DiskSize  int64
}

// ScanOutcome is the tagged result of one Scan call, replacing the source's
// exception-based "scan_failed" control flow (spec.md section 9): pause and
// resume are modelled explicitly rather than repurposing an error code.
type ScanOutcome uint8

const (
	ScanComplete ScanOutcome = iota
	ScanYield
	ScanFailed
)

// ScanContext is an opaque, implementation-owned handle a KVStore hands back
// from InitBySeqnoScan and consumes in Scan/Compact; callers must not
// inspect its fields.
type ScanContext interface {
	VBucketID() uint16
}

// GetRequest/GetResult model the get_multi capability: a batch of keys in,
// a per-key result out.
type GetRequest struct {
	Key []byte
}

type GetResult struct {
	Value  []byte
	Cas    uint64
	Found  bool
	Failed bool
}

// RollbackResult reports the outcome of a rollback to a target seqno.
type RollbackResult struct {
	Success   bool
	HighSeqno int64
}

// AccessLogStatus distinguishes "no access log was ever written for this
// vBucket" (a fresh bucket, or one that has never rotated a log) from "a log
// was found and parsed". Only a log that IS present but fails to parse is an
// error (spec.md section 251): absence alone is not.
type AccessLogStatus uint8

const (
	AccessLogNotFound AccessLogStatus = iota
	AccessLogOK
)

// AccessLogKey is one (vbid, key) entry recorded in a vBucket's cached
// access log (spec.md section 251's "append-only file of (vbid, key)
// batches"), replayed during LoadingAccessLog to prime the working set
// ahead of a full scan.
type AccessLogKey struct {
	VBucketID uint16
	Key       []byte
}

// KVStore is the capability set the checkpoint and warmup subsystems invoke
// against the pluggable disk engine (spec.md section 6); the engine itself
// is out of scope and is supplied by the caller, mirroring how the teacher's
// adapters/repos/db/lsmkv never talks to a concrete remote system directly
// but only through adapters/clients-style interfaces.
type KVStore interface {
	ListPersistedVBuckets(ctx context.Context) ([]PersistedVBucketState, error)
	GetCollectionsManifest(ctx context.Context, vbid uint16) ([]byte, error)
	GetCollectionStats(ctx context.Context, vbid uint16, collectionID uint32) (CollectionStats, CollectionStatsStatus, error)

	InitBySeqnoScan(ctx context.Context, vbid uint16, startSeqno int64) (ScanContext, error)
	Scan(ctx context.Context, sc ScanContext) (ScanOutcome, error)

	// ReadAccessLog returns vbid's cached access log, if any. An error
	// return means a log file was found but failed to parse (spec.md
	// section 251's "on read error"); AccessLogNotFound with a nil error
	// means no log exists yet, which is not a failure.
	ReadAccessLog(ctx context.Context, vbid uint16) ([]AccessLogKey, AccessLogStatus, error)

	GetMulti(ctx context.Context, vbid uint16, reqs map[string]GetRequest) (map[string]GetResult, error)
	Rollback(ctx context.Context, vbid uint16, targetSeqno int64) (RollbackResult, error)
	SnapshotStats(ctx context.Context, stats map[string]string) (bool, error)
	Compact(ctx context.Context, sc ScanContext) (bool, error)
}
