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

// Package nullstore provides a persistence.KVStore with no persisted
// vBuckets and no data: the bootstrap store a fresh, empty bucket warms up
// against, and the default wired into cmd/kvwarmupd until a real disk
// engine is linked in.
package nullstore

import (
	"context"

	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/persistence"
)

// Store is a persistence.KVStore over no data at all.
type Store struct{}

// New returns an empty Store.
func New() *Store { return &Store{} }

func (s *Store) ListPersistedVBuckets(ctx context.Context) ([]persistence.PersistedVBucketState, error) {
	return nil, nil
}

func (s *Store) GetCollectionsManifest(ctx context.Context, vbid uint16) ([]byte, error) {
	return nil, nil
}

func (s *Store) GetCollectionStats(ctx context.Context, vbid uint16, collectionID uint32) (persistence.CollectionStats, persistence.CollectionStatsStatus, error) {
	return persistence.CollectionStats{}, persistence.CollectionStatsNotFound, nil
}

type scanContext struct{ vbid uint16 }

func (c *scanContext) VBucketID() uint16 { return c.vbid }

func (s *Store) InitBySeqnoScan(ctx context.Context, vbid uint16, startSeqno int64) (persistence.ScanContext, error) {
	return &scanContext{vbid: vbid}, nil
}

func (s *Store) Scan(ctx context.Context, sc persistence.ScanContext) (persistence.ScanOutcome, error) {
	return persistence.ScanComplete, nil
}

func (s *Store) GetMulti(ctx context.Context, vbid uint16, reqs map[string]persistence.GetRequest) (map[string]persistence.GetResult, error) {
	return map[string]persistence.GetResult{}, nil
}

func (s *Store) Rollback(ctx context.Context, vbid uint16, targetSeqno int64) (persistence.RollbackResult, error) {
	return persistence.RollbackResult{Success: true, HighSeqno: targetSeqno}, nil
}

func (s *Store) SnapshotStats(ctx context.Context, stats map[string]string) (bool, error) {
	return true, nil
}

func (s *Store) Compact(ctx context.Context, sc persistence.ScanContext) (bool, error) {
	return true, nil
}

func (s *Store) ReadAccessLog(ctx context.Context, vbid uint16) ([]persistence.AccessLogKey, persistence.AccessLogStatus, error) {
	return nil, persistence.AccessLogNotFound, nil
}
