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

// Package kvconfig carries the policy knobs the checkpoint and warmup
// subsystems are constructed with, in the same plain-struct-plus-
// DefaultConfig idiom as the teacher's usecases/config.Config: no env or
// flag parsing framework at this scope, just explicit fields a caller
// overrides before construction.
package kvconfig

import "time"

// Config is the full set of tunables shared by CheckpointManager,
// MemRecoveryTask, CheckpointDestroyer, and WarmupStateMachine.
type Config struct {
	// Checkpoint / MemRecoveryTask
	MaxCheckpoints        int
	MaxItemsPerCheckpoint int
	EagerDisposal         bool
	EnableCheckpointMerge bool

	MemLowWaterMark  int64 // bytes; MemRecoveryTask targets this
	MemHighWaterMark int64 // bytes; passed through to each checkpoint.Manager
	// via Context.CheckpointConfig, it is the ceiling Queue itself refuses
	// writes above with ckpt.ErrOutOfMemory
	MemQuota         int64 // bytes; the bucket's overall memory budget, the
	// "quota" half of warmup's traffic-admission predicate
	RecoveryInterval time.Duration

	DestroyerDrainInterval time.Duration

	// Warmup
	WarmupNumReadCap  float64 // fraction of estimated item count
	WarmupMemUsedCap  float64 // fraction of quota
	WarmupScanDeadline time.Duration
	NumShards          int
}

// DefaultConfig returns the defaults this module ships with, matching the
// magnitudes a single-node development deployment would use.
func DefaultConfig() Config {
	return Config{
		MaxCheckpoints:        int(^uint(0) >> 1),
		MaxItemsPerCheckpoint: 10000,
		EagerDisposal:         true,
		EnableCheckpointMerge: false,

		MemLowWaterMark:  256 << 20,
		MemHighWaterMark: 384 << 20,
		MemQuota:         1 << 30,
		RecoveryInterval: time.Second,

		DestroyerDrainInterval: 100 * time.Millisecond,

		WarmupNumReadCap:   0.75,
		WarmupMemUsedCap:   0.75,
		WarmupScanDeadline: 10 * time.Millisecond,
		NumShards:          4,
	}
}
