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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/checkpoint"
	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/persistence"
	"github.com/weaviate/kvcheckpoint/entities/errorcompounder"
	kvtask "github.com/weaviate/kvcheckpoint/entities/task"
)

// OOMProbe reports whether the runtime is currently out of memory; injected
// so tests can simulate the condition without an actual allocator limit.
// nil means "never OOM".
type OOMProbe func() bool

// StateMachine drives one bucket's recovery through the phases of state.go,
// fanning each phase out across NumShards workers and gating the advance to
// the next phase on all of them completing, the same
// one-phase-at-a-time/shared-barrier shape the teacher's migrator uses to
// run per-shard LSM segment recovery before the store is marked ready.
type StateMachine struct {
	ctx    *Context
	logger logrus.FieldLogger

	state atomic.Uint32

	oomHits  atomic.Int32
	oomProbe OOMProbe

	runMu  sync.Mutex
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// NewStateMachine builds a StateMachine at Initialize.
func NewStateMachine(ctx *Context, logger logrus.FieldLogger) *StateMachine {
	return &StateMachine{
		ctx:    ctx,
		logger: logger.WithField("component", "warmup"),
		done:   make(chan struct{}),
	}
}

// SetOOMProbe installs a probe consulted during the two data-loading
// phases; exported for test injection.
func (sm *StateMachine) SetOOMProbe(p OOMProbe) { sm.oomProbe = p }

// State returns the current phase.
func (sm *StateMachine) State() State { return State(sm.state.Load()) }

// transition moves the machine from its current state to to, refusing the
// move if it is neither in legalTransitions nor a move to Done, which is
// allowed from any state (an illegal move is a programmer error, not a runtime
// condition, so it panics the way the teacher's migrator panics on an
// inconsistent internal phase graph).
func (sm *StateMachine) transition(to State) {
	from := sm.State()
	if !CanTransition(from, to) && to != Done {
		panic("warmup: illegal phase transition " + from.String() + " -> " + to.String())
	}
	sm.state.Store(uint32(to))
	sm.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Info("warmup phase transition")
}

// Done reports whether the machine has reached the terminal state, either
// normally or via ForceDone.
func (sm *StateMachine) Done() <-chan struct{} { return sm.done }

func (sm *StateMachine) finish() {
	sm.doneOnce.Do(func() { close(sm.done) })
}

// ForceDone aborts the run immediately, transitions to Done regardless of
// the current phase, cancels any in-flight phase so it unwinds at its next
// yield point (spec.md section 5: "tasks are cancelled by an out-of-band
// signal checked at each yield point"), and drains any suspended cookies
// with outcome. Used on bucket shutdown requested mid-warmup (spec.md
// section 4.6, key invariant 1).
func (sm *StateMachine) ForceDone(outcome CookieOutcome) {
	sm.state.Store(uint32(Done))

	sm.runMu.Lock()
	cancel := sm.cancel
	sm.runMu.Unlock()
	if cancel != nil {
		cancel()
	}

	sm.ctx.Cookies.Drain(outcome)
	sm.finish()
}

// runShards invokes fn once per shard concurrently and aggregates any
// per-shard failures with the teacher's own errorcompounder rather than an
// external multi-error library (see DESIGN.md).
func (sm *StateMachine) runShards(fn func(shardID int) error) error {
	ec := errorcompounder.New()
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < sm.ctx.NumShards(); i++ {
		shardID := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(shardID); err != nil {
				mu.Lock()
				ec.Addf("shard %d: %v", shardID, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if !ec.Empty() {
		return ec.ToError()
	}
	return nil
}

// Run executes the full recovery pipeline once, in order, returning the
// first phase error encountered. On success the machine ends in Done and
// traffic admission becomes possible per Context.ReadyForTraffic.
func (sm *StateMachine) Run(ctx context.Context) error {
	defer sm.finish()

	ctx, cancel := context.WithCancel(ctx)
	sm.runMu.Lock()
	sm.cancel = cancel
	sm.runMu.Unlock()
	defer cancel()

	sm.transition(CreateVBuckets)
	if err := sm.createVBuckets(ctx); err != nil {
		return err
	}

	sm.transition(LoadingCollectionCounts)
	if err := sm.loadingCollectionCounts(ctx); err != nil {
		return err
	}

	sm.transition(EstimateDatabaseItemCount)
	sm.estimateDatabaseItemCount(ctx)

	sm.transition(LoadPreparedSyncWrites)
	if err := sm.loadPreparedSyncWrites(ctx); err != nil {
		return err
	}

	sm.transition(PopulateVBucketMap)
	sm.ctx.Cookies.Drain(CookieSuccess)

	sm.transition(CheckForAccessLog)
	if sm.ctx.CorruptAccessLog() {
		sm.transition(LoadingData)
		if err := sm.scanPhase(ctx, LoadingData); err != nil {
			return err
		}
		sm.transition(Done)
		return nil
	}

	sm.transition(LoadingAccessLog)
	if err := sm.loadingAccessLog(ctx); err != nil {
		sm.ctx.SetCorruptAccessLog()
		sm.transition(LoadingData)
		if err := sm.scanPhase(ctx, LoadingData); err != nil {
			return err
		}
		sm.transition(Done)
		return nil
	}

	sm.transition(LoadingData)
	if err := sm.scanPhase(ctx, LoadingData); err != nil {
		return err
	}
	sm.transition(Done)
	return nil
}

// createVBuckets loads every persisted vBucket record, assigns it to a
// shard, appends a failover-table entry where spec.md's invariant 3
// requires one, and constructs its in-memory CheckpointManager from the
// persisted high_seqno.
func (sm *StateMachine) createVBuckets(ctx context.Context) error {
	states, err := sm.ctx.Store.ListPersistedVBuckets(ctx)
	if err != nil {
		return err
	}

	for _, s := range states {
		if s.RequiresWarmupAbort() {
			sm.logger.WithField("vbucket", s.VBucketID).
				Error("vbucket does not support namespaces, aborting warmup")
			return errUnsupportedNamespaces{vbid: s.VBucketID}
		}

		role := RoleActive
		if s.State == persistence.StateReplica {
			role = RoleReplica
		}
		sm.ctx.AssignVBucket(s.VBucketID, role)

		uncleanShutdown := s.HighSeqno != s.LastSnapEnd
		if entry := NewFailoverEntry(s, uncleanShutdown, false); entry != nil {
			sm.ctx.RecordFailoverEntry(s.VBucketID, *entry)
		}

		shardID := int(s.VBucketID) % sm.ctx.NumShards()
		mgr := checkpoint.NewManager(s.VBucketID, s.HighSeqno, sm.ctx.CheckpointConfig(), sm.ctx.Disposer, sm.logger)
		sm.ctx.RegisterManager(shardID, s.VBucketID, mgr)
	}
	return nil
}

type errUnsupportedNamespaces struct{ vbid uint16 }

func (e errUnsupportedNamespaces) Error() string {
	return "vbucket does not support namespaces"
}

// loadingCollectionCounts fetches each vBucket's collection manifest,
// fanned out by shard; per-collection stats are not read here.
func (sm *StateMachine) loadingCollectionCounts(ctx context.Context) error {
	return sm.runShards(func(shardID int) error {
		for _, v := range sm.ctx.OrderedVBucketsForShard(shardID) {
			if _, err := sm.ctx.Store.GetCollectionsManifest(ctx, v.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// estimateDatabaseItemCount sums the item counts across every assigned
// vBucket's default-collection stats into Context's traffic-admission
// denominator. Best-effort: a per-vBucket stats failure does not abort
// warmup, it just leaves that vBucket's contribution at zero.
func (sm *StateMachine) estimateDatabaseItemCount(ctx context.Context) {
	var total int64
	for shardID := 0; shardID < sm.ctx.NumShards(); shardID++ {
		for _, v := range sm.ctx.OrderedVBucketsForShard(shardID) {
			stats, status, err := sm.ctx.Store.GetCollectionStats(ctx, v.ID, 0)
			if err != nil || status != persistence.CollectionStatsOK {
				continue
			}
			total += stats.ItemCount
		}
	}
	sm.ctx.SetEstimatedItemCount(total)
}

// loadPreparedSyncWrites is a no-op placeholder fan-out: durable (prepared)
// writes are replayed through the same CheckpointManager.Queue path the
// runtime uses, so there is nothing additional to wire here beyond giving
// every shard a chance to do so.
func (sm *StateMachine) loadPreparedSyncWrites(ctx context.Context) error {
	return sm.runShards(func(shardID int) error {
		return nil
	})
}

// loadingAccessLog replays each shard's cached key-access log, if present,
// by issuing one GetMulti per vBucket over the logged keys to prime the
// KVStore's own working-set cache ahead of the full scan phases. A vBucket
// with no log yet (AccessLogNotFound) is skipped, not an error: only a log
// that exists but fails to parse aborts the phase, so Run can set
// corrupt_access_log and fall back to LoadingData (spec.md section 251).
func (sm *StateMachine) loadingAccessLog(ctx context.Context) error {
	return sm.runShards(func(shardID int) error {
		for _, v := range sm.ctx.OrderedVBucketsForShard(shardID) {
			keys, status, err := sm.ctx.Store.ReadAccessLog(ctx, v.ID)
			if err != nil {
				return err
			}
			if status != persistence.AccessLogOK || len(keys) == 0 {
				continue
			}

			reqs := make(map[string]persistence.GetRequest, len(keys))
			for _, k := range keys {
				reqs[string(k.Key)] = persistence.GetRequest{Key: k.Key}
			}
			if _, err := sm.ctx.Store.GetMulti(ctx, v.ID, reqs); err != nil {
				return err
			}
			sm.ctx.AddWarmed(int64(len(keys)))
		}
		return nil
	})
}

// scanPhase runs the full-scan data-loading phase (LoadingKVPairs or
// LoadingData), one InitBySeqnoScan/Scan loop per vBucket per shard, paced
// by a task.Func so a long scan yields control every WarmupScanDeadline
// (spec.md section 4.6's pause/resume backfill requirement) and checked
// against the OOM probe before every Scan call. In LoadingData, every shard
// shares one trafficReady flag: as soon as any key load trips
// Context.ReadyForTraffic (spec.md section 4.6's traffic-admission
// predicate), every shard stops at its next check, inside its current
// vBucket's scan or before the next vBucket, rather than scanning to
// completion.
func (sm *StateMachine) scanPhase(ctx context.Context, phase State) error {
	var trafficReady atomic.Bool
	return sm.runShards(func(shardID int) error {
		for _, v := range sm.ctx.OrderedVBucketsForShard(shardID) {
			if trafficReady.Load() {
				return nil
			}
			if err := sm.scanVBucket(ctx, v.ID, phase, &trafficReady); err != nil {
				return err
			}
		}
		return nil
	})
}

func (sm *StateMachine) scanVBucket(ctx context.Context, vbid uint16, phase State, trafficReady *atomic.Bool) error {
	sc, err := sm.ctx.Store.InitBySeqnoScan(ctx, vbid, 0)
	if err != nil {
		return err
	}

	shouldBreak := func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
		}
		return trafficReady.Load()
	}

	deadline := sm.ctx.Config.WarmupScanDeadline
	fn := kvtask.Func(func(shouldBreak kvtask.ShouldBreak) (kvtask.Outcome, time.Duration) {
		start := time.Now()
		for time.Since(start) < deadline {
			if shouldBreak() {
				return kvtask.Done, 0
			}
			if sm.checkOOM() {
				return kvtask.Done, 0
			}

			outcome, err := sm.ctx.Store.Scan(ctx, sc)
			if err != nil {
				sm.logger.WithField("vbucket", vbid).WithError(err).Error("scan failed")
				return kvtask.Done, 0
			}
			sm.ctx.AddWarmed(1)

			if phase == LoadingData {
				sm.ctx.SetMemoryUsage(sm.ctx.TotalCheckpointMemoryUsage(), sm.ctx.Config.MemQuota)
				if sm.ctx.ReadyForTraffic() {
					trafficReady.Store(true)
					return kvtask.Done, 0
				}
			}

			switch outcome {
			case persistence.ScanComplete, persistence.ScanFailed:
				return kvtask.Done, 0
			}
		}
		return kvtask.Reschedule, 0
	})

	for {
		outcome, _ := fn(shouldBreak)
		if outcome == kvtask.Done {
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
	}
}

// checkOOM consults the OOM probe, if any, and implements spec.md section
// 4.6's two-strike policy: the first NoMem observation is only logged and
// the scan goes on; no purge or ejection is performed. The second aborts
// the run by marking WarmupOOMFailure and forcing Done.
func (sm *StateMachine) checkOOM() bool {
	if sm.oomProbe == nil || !sm.oomProbe() {
		return false
	}

	hits := sm.oomHits.Add(1)
	if hits == 1 {
		sm.logger.Warn("warmup observed low memory, continuing")
		return false
	}

	sm.logger.Error("warmup observed a second low-memory condition, aborting")
	sm.ctx.SetWarmupOOMFailure()
	sm.ForceDone(CookieDisconnect)
	return true
}
