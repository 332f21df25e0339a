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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistedVBucketState_DefaultsOmittedFields(t *testing.T) {
	raw := `{"version":1,"state":"active","high_seqno":10,"last_snap_start":10,"last_snap_end":10}`

	var s PersistedVBucketState
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	assert.True(t, s.SupportsNamespaces)
	assert.Equal(t, int64(0), s.PersistedCompletedSeqno)
	assert.Equal(t, int64(0), s.PersistedPreparedSeqno)
	assert.Equal(t, int64(0), s.OnDiskPrepares)
	assert.Equal(t, []string{}, s.Transition.ReplicationTopology)
	assert.False(t, s.RequiresWarmupAbort())
}

func TestPersistedVBucketState_ExplicitFalseSupportsNamespacesAbortsWarmup(t *testing.T) {
	raw := `{"version":1,"state":"active","supports_namespaces":false}`

	var s PersistedVBucketState
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	assert.False(t, s.SupportsNamespaces)
	assert.True(t, s.RequiresWarmupAbort())
}

func TestPersistedVBucketState_RoundTrip(t *testing.T) {
	s := PersistedVBucketState{
		Version:   2,
		State:     StateActive,
		HighSeqno: 42,
		Transition: Transition{
			State:     StateActive,
			Failovers: []FailoverEntry{{UUID: "abc", Seqno: 10}},
		},
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var out PersistedVBucketState
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, s.HighSeqno, out.HighSeqno)
	assert.Equal(t, s.Transition.Failovers, out.Transition.Failovers)
}
