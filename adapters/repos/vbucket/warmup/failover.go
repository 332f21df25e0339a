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
	"github.com/google/uuid"

	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/persistence"
)

// NewFailoverEntry implements spec.md section 4.6, key invariant 3: a
// vBucket recovered from an unclean shutdown (ep_force_shutdown) or whose
// collections manifest needed updating during CreateVBuckets gets one new
// failover-table entry, branched at high_seqno if it equals last_snap_end,
// or at last_snap_start otherwise (i.e. the in-flight snapshot is rolled
// back to its start rather than assumed complete).
//
// Returns nil when neither trigger applies; no entry is appended on a clean
// shutdown with an up-to-date manifest.
func NewFailoverEntry(s persistence.PersistedVBucketState, uncleanShutdown, manifestUpdateNeeded bool) *persistence.FailoverEntry {
	if !uncleanShutdown && !manifestUpdateNeeded {
		return nil
	}

	seqno := s.LastSnapStart
	if s.HighSeqno == s.LastSnapEnd {
		seqno = s.LastSnapEnd
	}

	return &persistence.FailoverEntry{
		UUID:  uuid.NewString(),
		Seqno: seqno,
	}
}
