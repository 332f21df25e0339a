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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	assert.True(t, CanTransition(Initialize, CreateVBuckets))
	assert.True(t, CanTransition(CreateVBuckets, LoadingCollectionCounts))
	assert.True(t, CanTransition(CheckForAccessLog, LoadingAccessLog))
	assert.True(t, CanTransition(LoadingAccessLog, LoadingData))
	assert.True(t, CanTransition(LoadingKVPairs, Done))
}

func TestCanTransition_RejectsSkippedPhases(t *testing.T) {
	assert.False(t, CanTransition(Initialize, Done))
	assert.False(t, CanTransition(CreateVBuckets, LoadingData))
}

func TestCanTransition_DoneHasNoOutgoing(t *testing.T) {
	assert.False(t, CanTransition(Done, Initialize))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "loading_kv_pairs", LoadingKVPairs.String())
	assert.Equal(t, "done", Done.String())
}
