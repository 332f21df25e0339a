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

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/checkpoint"
	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/persistence"
	"github.com/weaviate/kvcheckpoint/usecases/kvconfig"
)

// shardVBuckets bundles one shard's assigned vBuckets with the managers
// recovered for them so far.
type shardVBuckets struct {
	mu       sync.Mutex
	assigned []VBucketRef
	managers map[uint16]*checkpoint.Manager
}

// Context is the shared state one WarmupStateMachine run threads through
// every phase: the KVStore boundary, policy knobs, per-shard assignment and
// recovered managers, the cookie suspension queue, and the bucket-level
// flags spec.md section 7 requires warmup to surface. It plays the role the
// teacher's db.DB plus its migrator state play across adapters/repos/db's
// startup sequence: one struct, built once, read by every phase.
type Context struct {
	Store  persistence.KVStore
	Config kvconfig.Config
	Logger logrus.FieldLogger

	Disposer checkpoint.Disposer

	Cookies *CookieQueue

	shards []*shardVBuckets

	failoverMu  sync.Mutex
	failoverLog map[uint16][]persistence.FailoverEntry

	// Bucket-level flags (spec.md section 7), each set at most once and
	// read by the traffic-admission and shutdown-reporting logic.
	corruptAccessLog        atomic.Bool
	warmupOOMFailure         atomic.Bool
	failedToSetVBucketState atomic.Bool

	warmedCount          atomic.Int64
	estimatedItemCount   atomic.Int64
	memUsed              atomic.Int64
	memQuota             atomic.Int64
}

// NewContext builds a Context with numShards empty shard slots and a fresh
// cookie queue.
func NewContext(store persistence.KVStore, cfg kvconfig.Config, disposer checkpoint.Disposer, logger logrus.FieldLogger) *Context {
	c := &Context{
		Store:    store,
		Config:   cfg,
		Logger:   logger,
		Disposer:    disposer,
		Cookies:     &CookieQueue{},
		shards:      make([]*shardVBuckets, cfg.NumShards),
		failoverLog: map[uint16][]persistence.FailoverEntry{},
	}
	for i := range c.shards {
		c.shards[i] = &shardVBuckets{managers: map[uint16]*checkpoint.Manager{}}
	}
	return c
}

// AssignVBucket places a vBucket on shard (vbid % NumShards), the same
// hashed-ownership convention the teacher uses to pin a shard index to a
// lsmkv segment group.
func (c *Context) AssignVBucket(vbid uint16, role VBucketRole) {
	shard := c.shards[int(vbid)%len(c.shards)]
	shard.mu.Lock()
	shard.assigned = append(shard.assigned, VBucketRef{ID: vbid, Role: role})
	shard.mu.Unlock()
}

// NumShards reports the shard fan-out width.
func (c *Context) NumShards() int { return len(c.shards) }

// OrderedVBucketsForShard returns shardID's assigned vBuckets in spec.md
// section 4.6 load order.
func (c *Context) OrderedVBucketsForShard(shardID int) []VBucketRef {
	shard := c.shards[shardID]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return OrderVBuckets(shardID, shard.assigned)
}

// CheckpointConfig derives a checkpoint.Config from the shared policy
// knobs; kept as a narrow translation rather than a shared type so the
// checkpoint package stays independent of kvconfig.
func (c *Context) CheckpointConfig() checkpoint.Config {
	return checkpoint.Config{
		MaxCheckpoints:        c.Config.MaxCheckpoints,
		MaxItemsPerCheckpoint: c.Config.MaxItemsPerCheckpoint,
		EagerDisposal:         c.Config.EagerDisposal,
		EnableCheckpointMerge: c.Config.EnableCheckpointMerge,
		MemHighWaterMark:      c.Config.MemHighWaterMark,
	}
}

// RegisterManager records the recovered CheckpointManager for vbid under
// its owning shard, so later phases (e.g. PopulateVBucketMap) can find it.
func (c *Context) RegisterManager(shardID int, vbid uint16, mgr *checkpoint.Manager) {
	shard := c.shards[shardID]
	shard.mu.Lock()
	shard.managers[vbid] = mgr
	shard.mu.Unlock()
}

// Manager looks up the recovered manager for vbid, if any.
func (c *Context) Manager(vbid uint16) (*checkpoint.Manager, bool) {
	shard := c.shards[int(vbid)%len(c.shards)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	mgr, ok := shard.managers[vbid]
	return mgr, ok
}

// RecordFailoverEntry appends entry to vbid's in-memory failover-table
// record, so later phases and callers can observe what CreateVBuckets
// decided (spec.md section 4.6, key invariant 3).
func (c *Context) RecordFailoverEntry(vbid uint16, entry persistence.FailoverEntry) {
	c.failoverMu.Lock()
	defer c.failoverMu.Unlock()
	c.failoverLog[vbid] = append(c.failoverLog[vbid], entry)
}

// FailoverEntries returns the failover-table entries recorded for vbid.
func (c *Context) FailoverEntries(vbid uint16) []persistence.FailoverEntry {
	c.failoverMu.Lock()
	defer c.failoverMu.Unlock()
	return append([]persistence.FailoverEntry(nil), c.failoverLog[vbid]...)
}

// SetCorruptAccessLog records that an access log failed to parse (spec.md
// section 4.6, CheckForAccessLog phase): warmup falls back to a full data
// scan rather than aborting.
func (c *Context) SetCorruptAccessLog() { c.corruptAccessLog.Store(true) }

// CorruptAccessLog reports whether SetCorruptAccessLog was ever called.
func (c *Context) CorruptAccessLog() bool { return c.corruptAccessLog.Load() }

// SetWarmupOOMFailure records that warmup terminated early because a second
// out-of-memory condition was observed during a data-loading phase.
func (c *Context) SetWarmupOOMFailure() { c.warmupOOMFailure.Store(true) }

// WarmupOOMFailure reports whether SetWarmupOOMFailure was ever called.
func (c *Context) WarmupOOMFailure() bool { return c.warmupOOMFailure.Load() }

// SetFailedToSetVBucketState records that a recovered vBucket could not be
// transitioned to its persisted state.
func (c *Context) SetFailedToSetVBucketState() { c.failedToSetVBucketState.Store(true) }

// FailedToSetVBucketState reports whether SetFailedToSetVBucketState was
// ever called.
func (c *Context) FailedToSetVBucketState() bool { return c.failedToSetVBucketState.Load() }

// AddWarmed increments the warmed-item counter traffic admission watches.
func (c *Context) AddWarmed(n int64) { c.warmedCount.Add(n) }

// SetEstimatedItemCount records the EstimateDatabaseItemCount phase result.
func (c *Context) SetEstimatedItemCount(n int64) { c.estimatedItemCount.Store(n) }

// SetMemoryUsage records the current tracked memory usage and quota, both
// consulted by the traffic-admission predicate.
func (c *Context) SetMemoryUsage(used, quota int64) {
	c.memUsed.Store(used)
	c.memQuota.Store(quota)
}

// TotalCheckpointMemoryUsage sums MemoryUsage() across every
// CheckpointManager recovered so far: the "mem_used" input to the
// traffic-admission predicate.
func (c *Context) TotalCheckpointMemoryUsage() int64 {
	var total int64
	for _, shard := range c.shards {
		shard.mu.Lock()
		for _, mgr := range shard.managers {
			total += mgr.MemoryUsage()
		}
		shard.mu.Unlock()
	}
	return total
}

// ReadyForTraffic implements spec.md section 4.6's admission predicate:
// warmed_count >= WarmupNumReadCap * estimated_item_count, or
// mem_used >= WarmupMemUsedCap * quota.
func (c *Context) ReadyForTraffic() bool {
	estimated := c.estimatedItemCount.Load()
	if estimated > 0 {
		warmed := c.warmedCount.Load()
		if float64(warmed) >= c.Config.WarmupNumReadCap*float64(estimated) {
			return true
		}
	}
	quota := c.memQuota.Load()
	if quota > 0 {
		used := c.memUsed.Load()
		if float64(used) >= c.Config.WarmupMemUsedCap*float64(quota) {
			return true
		}
	}
	return false
}
