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

import "math/rand"

// VBucketRole distinguishes an active vBucket from a replica one for the
// purposes of warmup ordering.
type VBucketRole uint8

const (
	RoleActive VBucketRole = iota
	RoleReplica
)

// VBucketRef is one vBucket assigned to a shard's warmup task.
type VBucketRef struct {
	ID   uint16
	Role VBucketRole
}

// OrderVBuckets produces the per-shard load order of spec.md section 4.6:
// one active vBucket first, then a 60/40-weighted pseudo-random
// interleaving of the remaining active and replica vBuckets, seeded by
// shardID so the order is reproducible across warmup attempts on the same
// shard assignment.
func OrderVBuckets(shardID int, vbuckets []VBucketRef) []VBucketRef {
	if len(vbuckets) == 0 {
		return nil
	}

	var actives, replicas []VBucketRef
	for _, v := range vbuckets {
		if v.Role == RoleActive {
			actives = append(actives, v)
		} else {
			replicas = append(replicas, v)
		}
	}

	out := make([]VBucketRef, 0, len(vbuckets))
	if len(actives) > 0 {
		out = append(out, actives[0])
		actives = actives[1:]
	}

	rng := rand.New(rand.NewSource(int64(shardID)))
	for len(actives) > 0 || len(replicas) > 0 {
		drawActive := len(replicas) == 0
		if len(actives) > 0 && len(replicas) > 0 {
			drawActive = rng.Float64() < 0.6
		} else if len(actives) == 0 {
			drawActive = false
		}

		if drawActive {
			out = append(out, actives[0])
			actives = actives[1:]
		} else {
			out = append(out, replicas[0])
			replicas = replicas[1:]
		}
	}
	return out
}
