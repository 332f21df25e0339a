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

// Package warmup implements the recovery state machine that rebuilds a
// bucket's per-vBucket checkpoint managers from disk at startup (spec.md
// section 4.6). It mirrors the fan-out-then-barrier shape of the teacher's
// adapters/repos/db top-level init/migrator pattern: one phase at a time,
// N workers per phase, a shared counter gating the transition to the next.
package warmup

import "fmt"

// State is one phase of the warmup recovery pipeline.
type State uint8

const (
	Initialize State = iota
	CreateVBuckets
	LoadingCollectionCounts
	EstimateDatabaseItemCount
	LoadPreparedSyncWrites
	PopulateVBucketMap
	KeyDump
	CheckForAccessLog
	LoadingAccessLog
	LoadingKVPairs
	LoadingData
	Done
)

// String names the phase for logging, mirroring the original's
// to_string(WarmupState) convention (spec.md section 4, original_source
// supplement).
func (s State) String() string {
	switch s {
	case Initialize:
		return "initialize"
	case CreateVBuckets:
		return "create_vbuckets"
	case LoadingCollectionCounts:
		return "loading_collection_counts"
	case EstimateDatabaseItemCount:
		return "estimate_database_item_count"
	case LoadPreparedSyncWrites:
		return "load_prepared_sync_writes"
	case PopulateVBucketMap:
		return "populate_vbucket_map"
	case KeyDump:
		return "key_dump"
	case CheckForAccessLog:
		return "check_for_access_log"
	case LoadingAccessLog:
		return "loading_access_log"
	case LoadingKVPairs:
		return "loading_kv_pairs"
	case LoadingData:
		return "loading_data"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// legalTransitions is the one-way phase graph of spec.md section 4.6. Done
// is reachable from any state via a forced shutdown transition, handled
// separately from this table by StateMachine.ForceDone.
var legalTransitions = map[State][]State{
	Initialize:                {CreateVBuckets},
	CreateVBuckets:            {LoadingCollectionCounts},
	LoadingCollectionCounts:   {EstimateDatabaseItemCount},
	EstimateDatabaseItemCount: {LoadPreparedSyncWrites},
	LoadPreparedSyncWrites:    {PopulateVBucketMap},
	PopulateVBucketMap:        {KeyDump, CheckForAccessLog},
	KeyDump:                   {LoadingKVPairs, CheckForAccessLog},
	CheckForAccessLog:         {LoadingAccessLog, LoadingData, LoadingKVPairs, Done},
	LoadingAccessLog:          {Done, LoadingData},
	LoadingKVPairs:            {Done},
	LoadingData:               {Done},
	Done:                      {},
}

// CanTransition reports whether to is a legal next phase from, per the
// ordinary (non-shutdown) transition table.
func CanTransition(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
