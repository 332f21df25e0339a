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

package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ckpt "github.com/weaviate/kvcheckpoint/entities/checkpoint"
)

func TestDestroyer_EnqueueTracksPendingMemory(t *testing.T) {
	d := NewDestroyer(silentLogger(), 0)

	var parent ckpt.MemoryTracker
	c := New(1, ckpt.TypeMemory, 1, 0, &parent)
	_, err := c.Append(&ckpt.QueuedItem{Key: []byte("k"), Operation: ckpt.OpMutation, BySeqno: 1, Value: []byte("v")}, nil)
	require.NoError(t, err)

	d.Enqueue([]*Checkpoint{c})
	assert.Equal(t, c.MemoryUsage(), d.PendingMemory())
	assert.Equal(t, 1, d.PendingCount())

	freed := d.DrainOnce()
	assert.Equal(t, 1, freed)
	assert.Equal(t, int64(0), d.PendingMemory())
	assert.Equal(t, 0, d.PendingCount())
}

func TestDestroyer_EnqueueEmptyIsNoop(t *testing.T) {
	d := NewDestroyer(silentLogger(), 0)
	d.Enqueue(nil)
	assert.Equal(t, 0, d.PendingCount())
}
