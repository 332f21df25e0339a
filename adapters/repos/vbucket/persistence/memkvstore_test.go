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

import (
	"context"
	"sync"
)

// memKVStore is a test-only, in-process fake of KVStore: no disk I/O, no
// concurrency control beyond a coarse mutex. Not a product implementation.
type memKVStore struct {
	mu sync.Mutex

	persisted map[uint16]PersistedVBucketState
	manifests map[uint16][]byte
	values    map[uint16]map[string][]byte
}

func newMemKVStore() *memKVStore {
	return &memKVStore{
		persisted: map[uint16]PersistedVBucketState{},
		manifests: map[uint16][]byte{},
		values:    map[uint16]map[string][]byte{},
	}
}

func (m *memKVStore) putState(vbid uint16, s PersistedVBucketState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted[vbid] = s
}

func (m *memKVStore) ListPersistedVBuckets(ctx context.Context) ([]PersistedVBucketState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PersistedVBucketState, 0, len(m.persisted))
	for vbid, s := range m.persisted {
		s.VBucketID = vbid
		out = append(out, s)
	}
	return out, nil
}

func (m *memKVStore) GetCollectionsManifest(ctx context.Context, vbid uint16) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manifests[vbid], nil
}

func (m *memKVStore) GetCollectionStats(ctx context.Context, vbid uint16, collectionID uint32) (CollectionStats, CollectionStatsStatus, error) {
	return CollectionStats{}, CollectionStatsNotFound, nil
}

type memScanContext struct {
	vbid uint16
	keys []string
	pos  int
}

func (c *memScanContext) VBucketID() uint16 { return c.vbid }

func (m *memKVStore) InitBySeqnoScan(ctx context.Context, vbid uint16, startSeqno int64) (ScanContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := m.values[vbid]
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return &memScanContext{vbid: vbid, keys: keys}, nil
}

func (m *memKVStore) Scan(ctx context.Context, sc ScanContext) (ScanOutcome, error) {
	msc := sc.(*memScanContext)
	if msc.pos >= len(msc.keys) {
		return ScanComplete, nil
	}
	msc.pos++
	if msc.pos >= len(msc.keys) {
		return ScanComplete, nil
	}
	return ScanYield, nil
}

func (m *memKVStore) ReadAccessLog(ctx context.Context, vbid uint16) ([]AccessLogKey, AccessLogStatus, error) {
	return nil, AccessLogNotFound, nil
}

func (m *memKVStore) GetMulti(ctx context.Context, vbid uint16, reqs map[string]GetRequest) (map[string]GetResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]GetResult{}
	values := m.values[vbid]
	for k, req := range reqs {
		v, ok := values[string(req.Key)]
		out[k] = GetResult{Value: v, Found: ok}
	}
	return out, nil
}

func (m *memKVStore) Rollback(ctx context.Context, vbid uint16, targetSeqno int64) (RollbackResult, error) {
	return RollbackResult{Success: true, HighSeqno: targetSeqno}, nil
}

func (m *memKVStore) SnapshotStats(ctx context.Context, stats map[string]string) (bool, error) {
	return true, nil
}

func (m *memKVStore) Compact(ctx context.Context, sc ScanContext) (bool, error) {
	return true, nil
}
